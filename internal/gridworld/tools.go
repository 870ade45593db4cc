package gridworld

import (
	"context"
	"strings"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
)

func toolKindForBlock(name string) bot.ToolKind {
	switch {
	case name == "dirt", name == "grass_block", name == "sand", name == "gravel":
		return bot.ToolShovel
	case strings.HasSuffix(name, "_log"), strings.HasSuffix(name, "_planks"),
		name == "chest", name == "trapped_chest", name == "barrel":
		return bot.ToolAxe
	default:
		return bot.ToolPickaxe
	}
}

var toolTiers = []string{"diamond", "iron", "stone", "wooden"}

// bestToolLocked returns the highest tier tool of kind in the inventory and its
// tier, 4 for diamond down to 1 for wood. Tier 0 means none.
func (w *World) bestToolLocked(kind bot.ToolKind) (string, int) {
	for i, t := range toolTiers {
		name := t + "_" + string(kind)
		if w.countLocked(name) > 0 {
			return name, len(toolTiers) - i
		}
	}
	return "", 0
}

// dropsWithHeldLocked reports whether breaking block with the held item yields a
// drop. Pickaxe blocks drop nothing when broken by hand.
func (w *World) dropsWithHeldLocked(block string) bool {
	if toolKindForBlock(block) != bot.ToolPickaxe {
		return true
	}
	return strings.HasSuffix(w.held, "_pickaxe")
}

// SmartDig implements bot.ToolHandler: equip the best tool for the block, then dig.
func (w *World) SmartDig(ctx context.Context, c geom.Cell, b bot.BlockState) error {
	w.mu.Lock()
	tool, _ := w.bestToolLocked(toolKindForBlock(b.Name))
	w.mu.Unlock()
	if tool != "" {
		if err := w.Equip(ctx, tool, "hand"); err != nil {
			return err
		}
	}
	return w.Dig(ctx, c)
}

func (w *World) HasTool(kind bot.ToolKind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, tier := w.bestToolLocked(kind)
	return tier > 0
}

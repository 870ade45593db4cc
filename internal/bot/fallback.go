package bot

import (
	"context"

	"voxelminer.ai/internal/geom"
)

// GenericDigger is the ToolHandler used when the runtime has none: it breaks the
// block with whatever is in hand.
type GenericDigger struct {
	World World
}

func (g GenericDigger) SmartDig(ctx context.Context, c geom.Cell, _ BlockState) error {
	return g.World.Dig(ctx, c)
}

func (GenericDigger) HasTool(ToolKind) bool { return false }

// SoloCoordinator grants every claim; used when a single agent owns the world.
type SoloCoordinator struct{}

func (SoloCoordinator) ClaimBlock(string, geom.Cell, ClaimKind) bool { return true }
func (SoloCoordinator) ReleaseBlock(geom.Cell)                       {}
func (SoloCoordinator) IsBlockClaimed(geom.Cell, string) bool        { return false }
func (SoloCoordinator) DivideArea(area Area, _ int, _ string) Area   { return area }

// NopCollector never picks anything up.
type NopCollector struct{}

func (NopCollector) CollectOnce(context.Context, CollectOptions) int { return 0 }
func (NopCollector) StartAuto(CollectOptions)                        {}
func (NopCollector) StopAuto()                                       {}
func (NopCollector) AutoRunning() bool                               { return false }

package miner

import (
	"context"
	"errors"
	"fmt"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/inventory"
	"voxelminer.ai/internal/obstacle"
)

func (e *Engine) hazardEnabled(s *Session, k obstacle.Kind) bool {
	switch k {
	case obstacle.Hole:
		return s.cfg.Obstacles.Holes
	case obstacle.Water:
		return s.cfg.Obstacles.Water
	case obstacle.Lava:
		return s.cfg.Obstacles.Lava
	}
	return false
}

// handle neutralizes a classified hazard. It reports false when the hazard could
// not be filled; callers decide whether that blocks the dig.
func (e *Engine) handle(ctx context.Context, s *Session, cls obstacle.Classification) bool {
	if cls.Kind == obstacle.None {
		return true
	}
	if !e.hazardEnabled(s, cls.Kind) {
		// Liquids the operator chose to ignore still may not be dug into.
		return !cls.Kind.IsLiquid()
	}
	target := cls.Pos
	if cls.Kind == obstacle.Hole {
		target = e.holeAnchor(s, cls.Pos)
		if s.isPlanned(target) {
			return true
		}
	}
	if s.isPlaced(target) {
		return true
	}
	if err := e.placeAt(ctx, s, target); err != nil {
		e.log.Printf("session %s: %s at %v not handled: %v", s.ID, cls.Kind, target, err)
		return false
	}
	return true
}

// holeAnchor moves a hole fill to where the agent actually stands: the planned floor
// in a tunnel, a platform two below the feet in a quarry (the quarry floor itself is
// about to be mined), one below the feet otherwise.
func (e *Engine) holeAnchor(s *Session, probe geom.Cell) geom.Cell {
	switch s.Mode {
	case ModeTunnel:
		return geom.Cell{X: probe.X, Y: s.FloorY, Z: probe.Z}
	case ModeQuarry:
		return e.world.Feet().Offset(0, -2, 0)
	default:
		return e.world.Feet().Below()
	}
}

// secureFooting fills the agent's own floor cell if it is hazardous.
func (e *Engine) secureFooting(ctx context.Context, s *Session) {
	anchor := e.holeAnchor(s, e.world.Feet())
	// A planned cell is about to be mined; filling it would undo the excavation.
	if s.isPlaced(anchor) || s.isPlanned(anchor) {
		return
	}
	k := obstacle.CellHazard(e.world, e.cats, anchor)
	if k == obstacle.None || !e.hazardEnabled(s, k) {
		return
	}
	if err := e.placeAt(ctx, s, anchor); err != nil {
		e.log.Printf("session %s: footing %v (%s) not secured: %v", s.ID, anchor, k, err)
	}
}

func (e *Engine) isSolid(c geom.Cell) bool {
	b, ok := e.world.BlockAt(c)
	return ok && e.cats.IsSolid(b.Name)
}

// placeAt fills c with a bridging material against the first solid non-upward
// neighbor. A cell that is already solid counts as filled.
func (e *Engine) placeAt(ctx context.Context, s *Session, c geom.Cell) (err error) {
	if e.isSolid(c) {
		return nil
	}
	defer func() {
		if err != nil {
			e.emit(s, Event{Type: EventPlaceFail, Pos: cellPtr(c), Message: err.Error()})
		}
	}()

	ref, found := geom.Cell{}, false
	for _, n := range geom.Neighbors5(c) {
		if e.isSolid(n) {
			ref, found = n, true
			break
		}
	}
	if !found {
		return ErrNoReference
	}
	material, ok := inventory.PickBridgingMaterial(e.world.Inventory(), s.cfg.BridgingMaterials, s.deny)
	if !ok {
		return ErrNoMaterial
	}

	closeIn := func() error {
		return e.nav.Goto(ctx, c, bot.GotoOptions{Timeout: s.cfg.NavTimeout, Tag: "place", Range: s.cfg.Reach.Close})
	}
	if geom.Distance(e.world.Feet(), c) > s.cfg.Reach.Dig {
		if gerr := closeIn(); gerr != nil && geom.Distance(e.world.Feet(), c) > s.cfg.Reach.Dig {
			return fmt.Errorf("%w: %v", ErrOutOfReach, gerr)
		}
	}
	if err := e.world.Equip(ctx, material, "hand"); err != nil {
		return fmt.Errorf("equip %s: %w", material, err)
	}
	face := c.Sub(ref)
	err = e.world.PlaceBlock(ctx, ref, face, material)
	if errors.Is(err, bot.ErrOutOfRange) {
		_ = closeIn()
		err = e.world.PlaceBlock(ctx, ref, face, material)
	}
	if err != nil {
		return fmt.Errorf("place %s at %v: %w", material, c, err)
	}

	s.markPlaced(c)
	e.metrics.add(ctx, e.metrics.placed, 1, s.Mode)
	e.emit(s, Event{Type: EventPlace, Pos: cellPtr(c), Item: material, Count: 1})
	return nil
}

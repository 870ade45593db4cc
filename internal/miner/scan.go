package miner

import (
	"context"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/obstacle"
)

// scanAhead walks the next slices of f. Floor cells get every enabled hazard filled;
// cells inside the cross-section get liquids filled only, since a hole there is
// about to be mined out anyway.
func (e *Engine) scanAhead(ctx context.Context, s *Session, f sliceFrame) {
	steps := s.cfg.ScanSteps()
	if f.Forward == geom.DirNone {
		steps = min(steps, 1)
	}
	fwd := f.Forward.Step()
	lat := f.Forward.Lateral().Step()
	offsets := geom.LateralOffsets(f.Width)

	for k := 0; k < steps; k++ {
		for _, off := range offsets {
			base := geom.Cell{
				X: f.Origin.X + fwd.X*k + lat.X*off,
				Y: f.Origin.Y,
				Z: f.Origin.Z + fwd.Z*k + lat.Z*off,
			}

			floor := geom.Cell{X: base.X, Y: f.FloorY, Z: base.Z}
			e.secureCell(ctx, s, floor, false)

			for h := 0; h < f.Height; h++ {
				e.secureCell(ctx, s, base.Offset(0, h, 0), true)
			}
		}
	}
}

func (e *Engine) secureCell(ctx context.Context, s *Session, c geom.Cell, liquidsOnly bool) {
	if s.isPlaced(c) {
		return
	}
	k := obstacle.CellHazard(e.world, e.cats, c)
	if k == obstacle.None || (liquidsOnly && !k.IsLiquid()) || !e.hazardEnabled(s, k) {
		return
	}
	// A quarry's floor probe lands in the next layer down; a gap there is
	// excavation already done for us.
	if !k.IsLiquid() && s.isPlanned(c) {
		return
	}
	if err := e.placeAt(ctx, s, c); err != nil {
		e.log.Printf("session %s: scan: %s at %v not secured: %v", s.ID, k, c, err)
	}
}

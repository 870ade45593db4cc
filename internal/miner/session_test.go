package miner

import (
	"testing"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/plan"
	"voxelminer.ai/internal/tuning"
)

func TestDepositLocation_Priority(t *testing.T) {
	cfg := tuning.Defaults().Deposit
	feet := geom.Cell{X: 9, Y: 9, Z: 9}
	start := geom.Cell{X: 1, Y: 2, Z: 3}

	if got := depositLocation(cfg, nil, feet); got != feet {
		t.Fatalf("fallback to feet: got %v", got)
	}
	if got := depositLocation(cfg, &start, feet); got != start {
		t.Fatalf("session start: got %v", got)
	}
	cfg.Chests = map[string]geom.Cell{"mining": {X: 100}, "farming": {X: 200}}
	if got := depositLocation(cfg, &start, feet); got != (geom.Cell{X: 100}) {
		t.Fatalf("category chest: got %v", got)
	}
}

func TestFrameFor(t *testing.T) {
	s := newSession(ModeTunnel, geom.Cell{X: 10, Y: 64, Z: 0}, tuning.Defaults(), nil)
	s.Dir, s.Width, s.Height = geom.North, 3, 2

	f := s.frameFor(plan.Action{Pos: geom.Cell{X: 11, Y: 65, Z: -4}, Zone: plan.ZoneTunnel})
	want := sliceFrame{Origin: geom.Cell{X: 10, Y: 64, Z: -4}, Forward: geom.North, Width: 3, Height: 2, FloorY: 63}
	if f != want {
		t.Fatalf("tunnel frame: got %+v want %+v", f, want)
	}

	s.Dir = geom.East
	f = s.frameFor(plan.Action{Pos: geom.Cell{X: 13, Y: 64, Z: -2}, Zone: plan.ZoneBranch})
	if f.Forward != geom.North || f.Width != 1 || f.Height != 2 || f.Origin != (geom.Cell{X: 13, Y: 64, Z: -2}) {
		t.Fatalf("branch frame toward -lateral: %+v", f)
	}

	f = s.frameFor(plan.Action{Pos: geom.Cell{X: 5, Y: 60, Z: 5}, Zone: plan.ZoneQuarry, Layer: 4})
	if f.Forward != geom.DirNone || f.FloorY != 59 || f.Width != 1 || f.Height != 1 {
		t.Fatalf("quarry frame: %+v", f)
	}
}

func TestNewSession_ProgressCadence(t *testing.T) {
	cfg := tuning.Defaults()
	if s := newSession(ModeQuarry, geom.Cell{}, cfg, nil); s.progress == nil || s.ID == "" {
		t.Fatalf("expected progress limiter and id")
	}
	cfg.Progress = tuning.Progress{}
	if s := newSession(ModeQuarry, geom.Cell{}, cfg, nil); s.progress != nil {
		t.Fatalf("zero cadence should disable progress reports")
	}
}

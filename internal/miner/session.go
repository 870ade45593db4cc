package miner

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/inventory"
	"voxelminer.ai/internal/plan"
	"voxelminer.ai/internal/tuning"
)

type Mode string

const (
	ModeNone   Mode = "none"
	ModeStrip  Mode = "strip"
	ModeQuarry Mode = "quarry"
	ModeTunnel Mode = "tunnel"
)

// Session is the arena for one start→finish cycle. It is owned by the goroutine
// running the start call and is never shared.
type Session struct {
	ID      string
	Mode    Mode
	Start   geom.Cell
	Dir     geom.Direction
	Width   int
	Height  int
	FloorY  int
	Plan    []plan.Action
	Started time.Time

	cfg  tuning.Settings
	deny *inventory.Matcher

	// placed is the ledger of cells this session filled itself.
	placed  map[geom.Cell]struct{}
	planned map[geom.Cell]struct{}

	progress *rate.Sometimes

	processed int
	mined     int
	placedN   int
	deposits  int
	deposited int
	// depositRetryAt holds threshold deposits back until the inventory total
	// reaches it.
	depositRetryAt int
	abandoned []geom.Cell
	cleaned   int
	remaining int
	stopped   bool
}

func newSession(mode Mode, start geom.Cell, cfg tuning.Settings, deny *inventory.Matcher) *Session {
	p := &rate.Sometimes{Every: cfg.Progress.EveryCells, Interval: cfg.Progress.Interval}
	if cfg.Progress.EveryCells <= 0 && cfg.Progress.Interval <= 0 {
		p = nil
	}
	return &Session{
		ID:       uuid.NewString(),
		Mode:     mode,
		Start:    start,
		Started:  time.Now(),
		cfg:      cfg,
		deny:     deny,
		FloorY:   start.Y - 1,
		placed:   map[geom.Cell]struct{}{},
		planned:  map[geom.Cell]struct{}{},
		progress: p,
	}
}

func (s *Session) isPlaced(c geom.Cell) bool {
	_, ok := s.placed[c]
	return ok
}

func (s *Session) markPlaced(c geom.Cell) {
	s.placed[c] = struct{}{}
	s.placedN++
}

func (s *Session) isPlanned(c geom.Cell) bool {
	_, ok := s.planned[c]
	return ok
}

func (s *Session) abandon(c geom.Cell) {
	s.abandoned = append(s.abandoned, c)
}

// sliceFrame describes the cross-section the look-ahead scan walks for an action.
type sliceFrame struct {
	Origin  geom.Cell
	Forward geom.Direction
	Width   int
	Height  int
	FloorY  int
}

func dot(c geom.Cell, d geom.Direction) int {
	u := d.Step()
	return c.X*u.X + c.Z*u.Z
}

func (s *Session) frameFor(a plan.Action) sliceFrame {
	switch a.Zone {
	case plan.ZoneTunnel, plan.ZoneMainTunnel:
		w, h := s.Width, s.Height
		if a.Zone == plan.ZoneMainTunnel {
			w, h = 1, 2
		}
		step := dot(a.Pos.Sub(s.Start), s.Dir)
		u := s.Dir.Step()
		origin := geom.Cell{X: s.Start.X + u.X*step, Y: s.Start.Y, Z: s.Start.Z + u.Z*step}
		return sliceFrame{Origin: origin, Forward: s.Dir, Width: w, Height: h, FloorY: s.FloorY}
	case plan.ZoneBranch:
		side := s.Dir.Lateral()
		if dot(a.Pos.Sub(s.Start), side) < 0 {
			side = side.Opposite()
		}
		origin := geom.Cell{X: a.Pos.X, Y: s.Start.Y, Z: a.Pos.Z}
		return sliceFrame{Origin: origin, Forward: side, Width: 1, Height: 2, FloorY: s.FloorY}
	default:
		return sliceFrame{Origin: a.Pos, Forward: geom.DirNone, Width: 1, Height: 1, FloorY: a.Pos.Y - 1}
	}
}

// Report summarizes a finished session.
type Report struct {
	SessionID string
	Mode      Mode
	Planned   int
	Processed int
	Mined     int
	Placed    int
	Deposits  int
	Deposited int
	Abandoned []geom.Cell
	Cleaned   int
	Remaining int
	Stopped   bool
	Duration  time.Duration
}

func (s *Session) report() Report {
	return Report{
		SessionID: s.ID,
		Mode:      s.Mode,
		Planned:   len(s.Plan),
		Processed: s.processed,
		Mined:     s.mined,
		Placed:    s.placedN,
		Deposits:  s.deposits,
		Deposited: s.deposited,
		Abandoned: append([]geom.Cell(nil), s.abandoned...),
		Cleaned:   s.cleaned,
		Remaining: s.remaining,
		Stopped:   s.stopped,
		Duration:  time.Since(s.Started),
	}
}

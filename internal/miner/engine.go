// Package miner is the excavation engine: it turns a mode and its geometry into a
// plan, drains the plan cell by cell through a verified dig protocol, neutralizes
// holes and liquids on the way, and deposits surplus items under keep-rules.
//
// The engine runs one cooperative session at a time. Start calls block until the
// session ends. StopMining and Disable may be called from any goroutine; they are
// observed at loop boundaries, so the in-flight dig, placement or transfer always
// completes.
package miner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/catalogs"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/inventory"
	"voxelminer.ai/internal/plan"
	"voxelminer.ai/internal/tuning"
)

var (
	ErrBadParams   = errors.New("invalid mining parameters")
	ErrOutOfReach  = errors.New("target out of reach")
	ErrNoReference = errors.New("no solid reference block")
	ErrNoMaterial  = errors.New("no placeable material")
	ErrNoContainer = errors.New("no usable container")
	ErrLiquid      = errors.New("unmitigated liquid")
	ErrClaimed     = errors.New("cell claimed by another agent")
)

type Config struct {
	Settings tuning.Settings
	Catalogs *catalogs.Catalogs

	World       bot.World
	Navigator   bot.Navigator
	Tools       bot.ToolHandler
	Coordinator bot.WorkCoordinator
	Collector   bot.ItemCollector

	Logger  *log.Logger
	Journal EventSink
	Index   SessionSink
}

type Engine struct {
	world     bot.World
	nav       bot.Navigator
	tools     bot.ToolHandler
	coord     bot.WorkCoordinator
	collector bot.ItemCollector
	cats      *catalogs.Catalogs
	log       *log.Logger
	journal   EventSink
	index     SessionSink
	metrics   *metrics

	cfgMu sync.Mutex
	cfg   tuning.Settings

	enabled atomic.Bool
	working atomic.Bool
	// active guards session exclusivity; working is the observable flag that
	// StopMining clears early.
	active sync.Mutex

	stateMu   sync.Mutex
	mode      Mode
	sessionID string
	planIndex int
	planLen   int
	mined     int
}

func New(cfg Config) (*Engine, error) {
	if cfg.World == nil {
		return nil, fmt.Errorf("miner: nil world")
	}
	if cfg.Navigator == nil {
		return nil, fmt.Errorf("miner: nil navigator")
	}
	settings := cfg.Settings
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("miner: settings: %w", err)
	}
	e := &Engine{
		world:     cfg.World,
		nav:       cfg.Navigator,
		tools:     cfg.Tools,
		coord:     cfg.Coordinator,
		collector: cfg.Collector,
		cats:      cfg.Catalogs,
		log:       cfg.Logger,
		journal:   cfg.Journal,
		index:     cfg.Index,
		metrics:   newMetrics(),
		cfg:       settings.Clone(),
		mode:      ModeNone,
	}
	if e.tools == nil {
		e.tools = bot.GenericDigger{World: cfg.World}
	}
	if e.coord == nil {
		e.coord = bot.SoloCoordinator{}
	}
	if e.collector == nil {
		e.collector = bot.NopCollector{}
	}
	if e.cats == nil {
		e.cats = catalogs.Default()
	}
	if e.log == nil {
		e.log = log.New(io.Discard, "", 0)
	}
	e.enabled.Store(true)
	return e, nil
}

// SetSettings replaces the configuration used by the next session. A running
// session keeps the snapshot it started with.
func (e *Engine) SetSettings(s tuning.Settings) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	e.cfgMu.Lock()
	e.cfg = s.Clone()
	e.cfgMu.Unlock()
	return nil
}

func (e *Engine) Settings() tuning.Settings {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.cfg.Clone()
}

// Status is a point-in-time view of the engine.
type Status struct {
	Enabled     bool   `json:"enabled"`
	Working     bool   `json:"working"`
	Mode        Mode   `json:"mode"`
	SessionID   string `json:"session_id,omitempty"`
	PlanIndex   int    `json:"plan_index"`
	PlanLen     int    `json:"plan_len"`
	BlocksMined int    `json:"blocks_mined"`
}

func (e *Engine) Status() Status {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return Status{
		Enabled:     e.enabled.Load(),
		Working:     e.working.Load(),
		Mode:        e.mode,
		SessionID:   e.sessionID,
		PlanIndex:   e.planIndex,
		PlanLen:     e.planLen,
		BlocksMined: e.mined,
	}
}

func (e *Engine) IsWorking() bool { return e.working.Load() }

func (e *Engine) CurrentMode() Mode {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.mode
}

func (e *Engine) CurrentPlanIndex() int {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.planIndex
}

func (e *Engine) BlocksMinedThisSession() int {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.mined
}

// StopMining asks the running session to halt at its next loop boundary.
func (e *Engine) StopMining() {
	wasWorking := e.working.Swap(false)
	e.enabled.Store(false)
	if wasWorking {
		e.nav.Stop()
		e.log.Printf("stop requested")
	}
}

func (e *Engine) Enable() { e.enabled.Store(true) }

// Disable gates the loop like StopMining but leaves the working flag to the
// session's own cleanup.
func (e *Engine) Disable() { e.enabled.Store(false) }

func (e *Engine) shouldContinue(ctx context.Context) bool {
	return ctx.Err() == nil && e.enabled.Load() && e.working.Load()
}

func (e *Engine) setCursor(i int) {
	e.stateMu.Lock()
	e.planIndex = i
	e.stateMu.Unlock()
}

func (e *Engine) addMined(n int) {
	e.stateMu.Lock()
	e.mined += n
	e.stateMu.Unlock()
}

// begin claims the engine for a new session. It returns ok=false without touching
// any state when a session is already active.
func (e *Engine) begin(mode Mode, start geom.Cell) (*Session, bool) {
	if e.working.Load() || !e.active.TryLock() {
		e.log.Printf("start %s ignored: already working", mode)
		return nil, false
	}
	cfg := e.Settings()
	deny, err := inventory.NewMatcher(cfg.Valuables)
	if err != nil {
		// Validated on load; fall back to tool/torch matching only.
		deny = &inventory.Matcher{}
	}
	s := newSession(mode, start, cfg, deny)

	e.enabled.Store(true)
	e.working.Store(true)
	e.stateMu.Lock()
	e.mode = mode
	e.sessionID = s.ID
	e.planIndex = 0
	e.planLen = 0
	e.mined = 0
	e.stateMu.Unlock()
	return s, true
}

func (e *Engine) setPlan(s *Session, actions []plan.Action) {
	s.Plan = actions
	s.planned = plan.CellSet(actions)
	e.stateMu.Lock()
	e.planLen = len(actions)
	e.stateMu.Unlock()
	e.log.Printf("session %s: %s plan with %d actions from %v", s.ID, s.Mode, len(actions), s.Start)
	e.emit(s, Event{Type: EventSessionStart, Pos: cellPtr(s.Start), Count: len(actions)})
}

// finish runs on every exit path of a start call.
func (e *Engine) finish(s *Session, rep *Report, errp *error) {
	if r := recover(); r != nil {
		*errp = fmt.Errorf("session %s: panic: %v", s.ID, r)
	}
	if !e.working.Load() || !e.enabled.Load() {
		s.stopped = s.stopped || s.processed < len(s.Plan)
	}
	*rep = s.report()

	e.working.Store(false)
	e.stateMu.Lock()
	e.mode = ModeNone
	e.sessionID = ""
	e.stateMu.Unlock()
	e.active.Unlock()

	msg := "ok"
	if *errp != nil {
		msg = (*errp).Error()
		e.log.Printf("session %s: fatal: %v", s.ID, *errp)
	}
	e.log.Printf("session %s: %s done processed=%d/%d mined=%d abandoned=%d placed=%d deposits=%d stopped=%v in %s",
		s.ID, s.Mode, rep.Processed, rep.Planned, rep.Mined, len(rep.Abandoned), rep.Placed, rep.Deposits, rep.Stopped,
		rep.Duration.Round(time.Millisecond))
	e.emit(s, Event{Type: EventSessionEnd, Count: rep.Mined, Message: msg})
	if e.index != nil {
		e.index.RecordSession(summaryOf(s, *rep, msg))
	}
}

// StartTunnel digs a width×height tunnel of the given length. Zero width or height
// fall back to the configured defaults.
func (e *Engine) StartTunnel(ctx context.Context, start geom.Cell, dir geom.Direction, length, width, height int) (rep Report, err error) {
	if !dir.Valid() || length <= 0 || width < 0 || height < 0 {
		return rep, fmt.Errorf("tunnel: %w", ErrBadParams)
	}
	s, ok := e.begin(ModeTunnel, start)
	if !ok {
		return rep, nil
	}
	defer e.finish(s, &rep, &err)

	if width == 0 {
		width = s.cfg.Tunnel.Width
	}
	if height == 0 {
		height = s.cfg.Tunnel.Height
	}
	s.Dir, s.Width, s.Height = dir, width, height
	e.setPlan(s, plan.Tunnel(start, dir, length, width, height))

	e.nav.PushDigBias(s.isPlanned)
	defer e.nav.PopDigBias()

	e.drainOrdered(ctx, s)
	if s.cfg.Cleanup.Enabled && e.shouldContinue(ctx) {
		e.cleanupPass(ctx, s)
	}
	e.postDeposit(ctx, s)
	return s.report(), nil
}

// StartStripMining digs a two-high main tunnel with alternating side branches.
func (e *Engine) StartStripMining(ctx context.Context, start geom.Cell, dir geom.Direction, mainLength, branches int) (rep Report, err error) {
	if !dir.Valid() || mainLength < 0 || branches < 0 {
		return rep, fmt.Errorf("strip: %w", ErrBadParams)
	}
	s, ok := e.begin(ModeStrip, start)
	if !ok {
		return rep, nil
	}
	defer e.finish(s, &rep, &err)

	if mainLength == 0 {
		mainLength = s.cfg.Strip.MainLength
	}
	s.Dir, s.Width, s.Height = dir, 1, 2
	e.setPlan(s, plan.Strip(start, dir, mainLength, branches, plan.StripParams{
		BranchSpacing: s.cfg.Strip.BranchSpacing,
		BranchLength:  s.cfg.Strip.BranchLength,
	}))

	e.drainLayered(ctx, s, false)
	e.postDeposit(ctx, s)
	return s.report(), nil
}

// StartQuarry excavates the rectangle spanned by the corners, depth layers down from
// the higher corner.
func (e *Engine) StartQuarry(ctx context.Context, corner1, corner2 geom.Cell, depth int) (rep Report, err error) {
	if depth < 0 {
		return rep, fmt.Errorf("quarry: %w", ErrBadParams)
	}
	s, ok := e.begin(ModeQuarry, corner1)
	if !ok {
		return rep, nil
	}
	defer e.finish(s, &rep, &err)

	if depth == 0 {
		depth = s.cfg.Quarry.Depth
	}
	rect := plan.NormalizeRect(corner1, corner2)
	topY := max(corner1.Y, corner2.Y)
	if n := s.cfg.Quarry.TeamSize; n > 1 {
		zone := e.coord.DivideArea(bot.Area{
			Min: geom.Cell{X: rect.MinX, Y: topY - depth + 1, Z: rect.MinZ},
			Max: geom.Cell{X: rect.MaxX, Y: topY, Z: rect.MaxZ},
		}, n, s.cfg.AgentID)
		rect = plan.NormalizeRect(zone.Min, zone.Max)
		e.log.Printf("session %s: quarry zone for %s is x=%d..%d z=%d..%d", s.ID, s.cfg.AgentID, rect.MinX, rect.MaxX, rect.MinZ, rect.MaxZ)
	}
	e.setPlan(s, plan.QuarryRect(rect, topY, depth))

	opts := bot.CollectOptions{Radius: s.cfg.CollectRadius, Timeout: s.cfg.NavTimeout}
	if e.collector.AutoRunning() {
		e.collector.StopAuto()
		defer e.collector.StartAuto(opts)
	}

	e.drainLayered(ctx, s, true)
	if s.cfg.Cleanup.Enabled && e.shouldContinue(ctx) {
		e.cleanupPass(ctx, s)
	}
	e.postDeposit(ctx, s)
	return s.report(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

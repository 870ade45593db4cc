package miner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"voxelminer.ai/internal/bot"
	"voxelminer.ai/internal/coord"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/gridworld"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/tuning"
)

type memJournal struct {
	mu     sync.Mutex
	events []miner.Event
	// onEvent runs after an event is stored, outside the lock.
	onEvent func(miner.Event)
}

func (j *memJournal) WriteEvent(ev miner.Event) error {
	j.mu.Lock()
	j.events = append(j.events, ev)
	hook := j.onEvent
	j.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return nil
}

func (j *memJournal) ofType(typ miner.EventType) []miner.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []miner.Event
	for _, ev := range j.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (j *memJournal) count(typ miner.EventType) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for _, ev := range j.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type rig struct {
	w  *gridworld.World
	e  *miner.Engine
	co *coord.Coordinator
	j  *memJournal
}

// start is underground: stone all around, floor at y=40.
var start = geom.Cell{X: 0, Y: 41, Z: 0}

func testSettings() tuning.Settings {
	s := tuning.Defaults()
	s.AgentID = "miner-a"
	s.VerifyDelay = 0
	s.SettleDelay = 0
	s.Progress = tuning.Progress{}
	s.Deposit.Threshold = 0
	s.Deposit.OnFinish = false
	return s
}

func newRig(t *testing.T, setup func(*tuning.Settings, *gridworld.Options)) *rig {
	t.Helper()
	return newRigNav(t, setup, nil)
}

// newRigNav builds a rig whose navigator is nav(world) instead of the world itself.
func newRigNav(t *testing.T, setup func(*tuning.Settings, *gridworld.Options), nav func(*gridworld.World) bot.Navigator) *rig {
	t.Helper()
	s := testSettings()
	opts := gridworld.DefaultOptions()
	opts.Gen.OrePermille = 0
	opts.Spawn = start
	if setup != nil {
		setup(&s, &opts)
	}
	w, err := gridworld.New(nil, opts)
	if err != nil {
		t.Fatalf("gridworld.New: %v", err)
	}
	w.Give("iron_pickaxe", 1)
	w.Give("cobblestone", 32)

	var n bot.Navigator = w
	if nav != nil {
		n = nav(w)
	}
	co := coord.New("miner-a", "miner-b")
	j := &memJournal{}
	e, err := miner.New(miner.Config{
		Settings:    s,
		Catalogs:    w.Catalogs(),
		World:       w,
		Navigator:   n,
		Tools:       w,
		Coordinator: co,
		Collector:   w,
		Journal:     j,
	})
	if err != nil {
		t.Fatalf("miner.New: %v", err)
	}
	return &rig{w: w, e: e, co: co, j: j}
}

func (r *rig) blockName(c geom.Cell) string {
	b, _ := r.w.BlockAt(c)
	return b.Name
}

func (r *rig) count(item string) int {
	for _, s := range r.w.Inventory() {
		if s.Name == item {
			return s.Count
		}
	}
	return 0
}

func TestStartTunnel_ClearsEveryPlannedCell(t *testing.T) {
	r := newRig(t, nil)
	var cheapInside, cheapOutside bool
	r.w.OnDig(func(geom.Cell) {
		cheapInside = r.w.DigCheap(geom.Cell{X: 3, Y: 42, Z: 0})
		cheapOutside = r.w.DigCheap(geom.Cell{X: 3, Y: 42, Z: 5})
	})

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 5, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if rep.Planned != 10 || rep.Processed != 10 || rep.Mined != 10 {
		t.Fatalf("report: %+v", rep)
	}
	if rep.Placed != 0 || len(rep.Abandoned) != 0 || rep.Stopped {
		t.Fatalf("unexpected side effects: %+v", rep)
	}
	for x := 0; x < 5; x++ {
		for y := 41; y <= 42; y++ {
			if got := r.blockName(geom.Cell{X: x, Y: y}); got != "air" {
				t.Fatalf("(%d,%d,0) still %q", x, y, got)
			}
		}
	}
	if !cheapInside || cheapOutside {
		t.Fatalf("dig bias during tunnel: inside=%v outside=%v", cheapInside, cheapOutside)
	}
	if r.w.DigBiasDepth() != 0 {
		t.Fatalf("dig bias not popped")
	}
	if r.e.IsWorking() || r.e.CurrentMode() != miner.ModeNone {
		t.Fatalf("engine not reset: working=%v mode=%s", r.e.IsWorking(), r.e.CurrentMode())
	}
	if r.e.BlocksMinedThisSession() != 10 {
		t.Fatalf("BlocksMinedThisSession: %d", r.e.BlocksMinedThisSession())
	}
	if got := r.count("cobblestone"); got != 42 {
		t.Fatalf("expected 42 cobblestone after mining, got %d", got)
	}
	if r.j.count(miner.EventSessionStart) != 1 || r.j.count(miner.EventSessionEnd) != 1 || r.j.count(miner.EventDigOK) != 10 {
		t.Fatalf("journal: %+v", r.j.events)
	}
}

func TestStartTunnel_BadParams(t *testing.T) {
	r := newRig(t, nil)
	if _, err := r.e.StartTunnel(context.Background(), start, geom.East, 0, 1, 2); !errors.Is(err, miner.ErrBadParams) {
		t.Fatalf("expected ErrBadParams, got %v", err)
	}
	if _, err := r.e.StartStripMining(context.Background(), start, geom.DirNone, 10, 2); !errors.Is(err, miner.ErrBadParams) {
		t.Fatalf("expected ErrBadParams for direction none, got %v", err)
	}
}

func TestLookAhead_FloorHoleBridgedVolumeHoleLeft(t *testing.T) {
	r := newRig(t, nil)
	floorHole := geom.Cell{X: 2, Y: 40, Z: 0}
	volumeHole := geom.Cell{X: 1, Y: 41, Z: 0}
	if err := r.w.SetBlock(floorHole, "air"); err != nil {
		t.Fatal(err)
	}
	if err := r.w.SetBlock(volumeHole, "air"); err != nil {
		t.Fatal(err)
	}

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 4, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if got := r.blockName(floorHole); got != "cobblestone" {
		t.Fatalf("floor hole not bridged: %q", got)
	}
	if n := r.w.CountOps(gridworld.OpPlace, volumeHole); n != 0 {
		t.Fatalf("volume hole got %d placement calls", n)
	}
	if rep.Placed != 1 {
		t.Fatalf("expected exactly one placement, got %d", rep.Placed)
	}

	placedAt, firstDigOver := -1, -1
	for i, op := range r.w.Ops() {
		if op.Kind == gridworld.OpPlace && op.Pos == floorHole && placedAt < 0 {
			placedAt = i
		}
		if op.Kind == gridworld.OpDig && op.Pos.X == floorHole.X && firstDigOver < 0 {
			firstDigOver = i
		}
	}
	if placedAt < 0 || firstDigOver < 0 || placedAt > firstDigOver {
		t.Fatalf("floor must be bridged before its slice is dug: place=%d dig=%d", placedAt, firstDigOver)
	}
}

func TestLookAhead_LiquidInVolumeFilledThenMined(t *testing.T) {
	r := newRig(t, nil)
	water := geom.Cell{X: 2, Y: 42, Z: 0}
	if err := r.w.SetBlock(water, "water"); err != nil {
		t.Fatal(err)
	}
	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 4, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if got := r.blockName(water); got != "air" {
		t.Fatalf("water cell should end up mined, got %q", got)
	}
	if rep.Placed != 1 || rep.Mined != 8 || len(rep.Abandoned) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestRetryBound_TunnelInline(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, _ *gridworld.Options) { s.Cleanup.Enabled = false })
	stubborn := geom.Cell{X: 1, Y: 41, Z: 0}
	r.w.FailDigs(stubborn, -1)

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 2, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpDig, stubborn); n != 3 {
		t.Fatalf("expected 3 dig attempts, got %d", n)
	}
	if rep.Processed != 4 || rep.Mined != 3 || len(rep.Abandoned) != 1 || rep.Abandoned[0] != stubborn {
		t.Fatalf("report: %+v", rep)
	}
	if r.j.count(miner.EventAbandon) != 1 {
		t.Fatalf("expected one ABANDON event")
	}
}

func TestRetryBound_LayeredRequeue(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, o *gridworld.Options) {
		s.Cleanup.Enabled = false
		o.Spawn = geom.Cell{X: 0, Y: 43, Z: 0}
	})
	stubborn := geom.Cell{X: 1, Y: 41, Z: 0}
	r.w.FailDigs(stubborn, -1)

	rep, err := r.e.StartQuarry(context.Background(), geom.Cell{X: 0, Y: 41, Z: 0}, geom.Cell{X: 1, Y: 41, Z: 1}, 1)
	if err != nil {
		t.Fatalf("StartQuarry: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpDig, stubborn); n != 3 {
		t.Fatalf("expected 3 dig attempts, got %d", n)
	}
	if rep.Planned != 4 || rep.Processed != 4 || rep.Mined != 3 {
		t.Fatalf("report: %+v", rep)
	}
	if len(rep.Abandoned) != 1 || rep.Abandoned[0] != stubborn {
		t.Fatalf("abandoned: %v", rep.Abandoned)
	}
	if r.co.Claims() != 0 {
		t.Fatalf("claims leaked: %d", r.co.Claims())
	}
}

func TestStart_WhileWorkingIsNoop(t *testing.T) {
	r := newRig(t, nil)
	var (
		once                   sync.Once
		inner                  miner.Report
		innerErr               error
		before, after          miner.Status
		modeBefore, modeDuring miner.Mode
	)
	r.w.OnDig(func(geom.Cell) {
		once.Do(func() {
			before = r.e.Status()
			modeBefore = r.e.CurrentMode()
			inner, innerErr = r.e.StartQuarry(context.Background(), geom.Cell{X: 10, Y: 41}, geom.Cell{X: 12, Y: 41, Z: 2}, 1)
			after = r.e.Status()
			modeDuring = r.e.CurrentMode()
		})
	})

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if innerErr != nil || inner.SessionID != "" || inner.Planned != 0 {
		t.Fatalf("nested start should be a no-op: %+v err=%v", inner, innerErr)
	}
	if before != after || modeBefore != miner.ModeTunnel || modeDuring != miner.ModeTunnel {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
	if rep.Processed != 6 {
		t.Fatalf("outer session disturbed: %+v", rep)
	}
	if got := r.blockName(geom.Cell{X: 10, Y: 41}); got != "stone" {
		t.Fatalf("nested quarry ran: %q", got)
	}
}

func TestStopMining_FinishesInFlightDig(t *testing.T) {
	r := newRig(t, nil)
	var once sync.Once
	r.w.OnDig(func(geom.Cell) { once.Do(r.e.StopMining) })

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 5, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if got := r.blockName(start); got != "air" {
		t.Fatalf("in-flight dig was not completed: %q", got)
	}
	if got := r.blockName(start.Above()); got != "stone" {
		t.Fatalf("loop continued past stop: %q", got)
	}
	if !rep.Stopped || rep.Processed != 1 || rep.Mined != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if r.w.Stops() != 1 {
		t.Fatalf("navigator not stopped")
	}
	if r.e.IsWorking() {
		t.Fatalf("still working after stop")
	}

	// A new start re-enables the engine.
	rep, err = r.e.StartTunnel(context.Background(), start, geom.East, 1, 1, 2)
	if err != nil || rep.Stopped || rep.Processed != 2 || rep.Mined != 1 {
		t.Fatalf("restart: %+v err=%v", rep, err)
	}
}

func TestDisable_HaltsAtNextBoundary(t *testing.T) {
	r := newRig(t, nil)
	var once sync.Once
	r.w.OnDig(func(geom.Cell) { once.Do(r.e.Disable) })
	rep, err := r.e.StartQuarry(context.Background(), start, geom.Cell{X: 2, Y: 41, Z: 2}, 1)
	if err != nil {
		t.Fatalf("StartQuarry: %v", err)
	}
	if !rep.Stopped || rep.Processed != 1 {
		t.Fatalf("report: %+v", rep)
	}
	if r.e.Status().Enabled {
		t.Fatalf("engine should stay disabled")
	}
	r.e.Enable()
	if !r.e.Status().Enabled {
		t.Fatalf("Enable did not take")
	}
}

func TestCleanupPass_RetriesMissedCells(t *testing.T) {
	r := newRig(t, nil)
	stubborn := geom.Cell{X: 1, Y: 41, Z: 0}
	r.w.FailDigs(stubborn, 3)

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 2, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if rep.Cleaned != 1 || rep.Remaining != 0 {
		t.Fatalf("cleanup: cleaned=%d remaining=%d", rep.Cleaned, rep.Remaining)
	}
	if n := r.w.CountOps(gridworld.OpDig, stubborn); n != 4 {
		t.Fatalf("expected 3 main + 1 cleanup attempt, got %d", n)
	}
	if got := r.blockName(stubborn); got != "air" {
		t.Fatalf("stubborn cell remains: %q", got)
	}
	if r.j.count(miner.EventCleanup) != 1 {
		t.Fatalf("expected a CLEANUP event")
	}
}

func TestClaimDenied_CellAbandonedAndForeignClaimKept(t *testing.T) {
	r := newRig(t, nil)
	held := geom.Cell{X: 1, Y: 41, Z: 0}
	if !r.co.ClaimBlock("miner-b", held, bot.ClaimDig) {
		t.Fatal("setup claim failed")
	}
	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 2, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpDig, held); n != 0 {
		t.Fatalf("dug a cell claimed by another agent %d times", n)
	}
	if len(rep.Abandoned) != 1 || rep.Abandoned[0] != held {
		t.Fatalf("abandoned: %v", rep.Abandoned)
	}
	if owner, ok := r.co.Owner(held); !ok || owner != "miner-b" || r.co.Claims() != 1 {
		t.Fatalf("foreign claim disturbed: owner=%q ok=%v claims=%d", owner, ok, r.co.Claims())
	}
	// Each denied claim spends one attempt of the budget.
	fails := 0
	for _, ev := range r.j.ofType(miner.EventDigFail) {
		if ev.Pos != nil && *ev.Pos == held {
			fails++
		}
	}
	if fails != 3 {
		t.Fatalf("expected 3 denied attempts, got %d", fails)
	}
	ab := r.j.ofType(miner.EventAbandon)
	if len(ab) != 1 || ab[0].Attempt != 3 {
		t.Fatalf("abandon events: %+v", ab)
	}
}

func TestClaimDenied_RetriedOnceReleased(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, _ *gridworld.Options) { s.Cleanup.Enabled = false })
	held := geom.Cell{X: 1, Y: 41, Z: 0}
	if !r.co.ClaimBlock("miner-b", held, bot.ClaimDig) {
		t.Fatal("setup claim failed")
	}
	r.j.onEvent = func(ev miner.Event) {
		if ev.Type == miner.EventDigFail && ev.Pos != nil && *ev.Pos == held {
			r.co.ReleaseBlock(held)
		}
	}

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 2, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if got := r.blockName(held); got != "air" {
		t.Fatalf("released cell not mined: %q", got)
	}
	if rep.Mined != 4 || len(rep.Abandoned) != 0 {
		t.Fatalf("report: %+v", rep)
	}
	if n := r.j.count(miner.EventDigFail); n != 1 {
		t.Fatalf("expected one denied attempt, got %d", n)
	}
	for _, ev := range r.j.ofType(miner.EventDigOK) {
		if ev.Pos != nil && *ev.Pos == held && ev.Attempt != 2 {
			t.Fatalf("dig after the denial should be attempt 2, got %d", ev.Attempt)
		}
	}
}

func TestQuarry_LayersTopDownWithSweeps(t *testing.T) {
	r := newRig(t, func(_ *tuning.Settings, o *gridworld.Options) {
		o.Spawn = geom.Cell{X: 0, Y: 43, Z: 0}
		o.DropEntities = true
	})
	r.w.StartAuto(bot.CollectOptions{Radius: 8})

	rep, err := r.e.StartQuarry(context.Background(), geom.Cell{X: 1, Y: 40, Z: 1}, geom.Cell{X: 0, Y: 41, Z: 0}, 2)
	if err != nil {
		t.Fatalf("StartQuarry: %v", err)
	}
	if rep.Planned != 8 || rep.Mined != 8 {
		t.Fatalf("report: %+v", rep)
	}
	sawLower := false
	collects := 0
	for _, op := range r.w.Ops() {
		switch op.Kind {
		case gridworld.OpDig:
			if op.Pos.Y == 40 {
				sawLower = true
			} else if sawLower {
				t.Fatalf("layer 41 dug after layer 40 started: %v", op.Pos)
			}
		case gridworld.OpCollect:
			collects++
		}
	}
	if collects != 2 {
		t.Fatalf("expected a sweep between layers and one at the end, got %d", collects)
	}
	if r.w.Drops() != 0 || r.count("cobblestone") != 40 {
		t.Fatalf("drops left=%d cobblestone=%d", r.w.Drops(), r.count("cobblestone"))
	}
	if !r.w.AutoRunning() {
		t.Fatalf("auto collection not restored")
	}
}

func TestQuarry_TeamSizeNarrowsZone(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, o *gridworld.Options) {
		s.Quarry.TeamSize = 2
		o.Spawn = geom.Cell{X: 1, Y: 43, Z: 0}
	})
	rep, err := r.e.StartQuarry(context.Background(), geom.Cell{X: 0, Y: 41}, geom.Cell{X: 3, Y: 41}, 1)
	if err != nil {
		t.Fatalf("StartQuarry: %v", err)
	}
	if rep.Planned != 2 {
		t.Fatalf("expected half the row, planned %d", rep.Planned)
	}
	if r.blockName(geom.Cell{X: 1, Y: 41}) != "air" || r.blockName(geom.Cell{X: 2, Y: 41}) != "stone" {
		t.Fatalf("wrong zone mined")
	}
}

func TestStripMining_MainThenBranches(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, _ *gridworld.Options) {
		s.Strip.BranchSpacing = 3
		s.Strip.BranchLength = 2
	})
	rep, err := r.e.StartStripMining(context.Background(), start, geom.East, 5, 2)
	if err != nil {
		t.Fatalf("StartStripMining: %v", err)
	}
	// main 5*2, one branch at distance 3 (6 >= 5 stops the second)
	if rep.Planned != 14 || rep.Processed != 14 {
		t.Fatalf("report: %+v", rep)
	}
	if r.blockName(geom.Cell{X: 3, Y: 41, Z: 2}) != "air" {
		t.Fatalf("branch not dug")
	}
	if r.blockName(geom.Cell{X: 3, Y: 41, Z: -1}) != "stone" {
		t.Fatalf("no branch expected on the negative side")
	}
}

func TestQuarry_LowerLayerGapLeftOpen(t *testing.T) {
	r := newRig(t, func(_ *tuning.Settings, o *gridworld.Options) {
		o.Spawn = geom.Cell{X: 0, Y: 43, Z: 0}
	})
	gap := geom.Cell{X: 1, Y: 40, Z: 1}
	if err := r.w.SetBlock(gap, "air"); err != nil {
		t.Fatal(err)
	}

	rep, err := r.e.StartQuarry(context.Background(), geom.Cell{X: 0, Y: 41, Z: 0}, geom.Cell{X: 1, Y: 41, Z: 1}, 2)
	if err != nil {
		t.Fatalf("StartQuarry: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpPlace, gap); n != 0 {
		t.Fatalf("gap in the next layer got %d placement calls", n)
	}
	if got := r.blockName(gap); got != "air" {
		t.Fatalf("gap: %q", got)
	}
	if rep.Planned != 8 || rep.Processed != 8 || rep.Mined != 7 || rep.Placed != 0 || len(rep.Abandoned) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestFooting_AnchorFollowsMode(t *testing.T) {
	noScan := func(spawn geom.Cell) func(*tuning.Settings, *gridworld.Options) {
		return func(s *tuning.Settings, o *gridworld.Options) {
			s.Obstacles.LookAheadDistance = 0
			s.Cleanup.Enabled = false
			o.Spawn = spawn
		}
	}

	t.Run("tunnel uses the planned floor", func(t *testing.T) {
		// Standing in the upper cell: one below the feet is planned, the floor is not.
		r := newRig(t, noScan(geom.Cell{X: 0, Y: 42, Z: 0}))
		hole := geom.Cell{X: 0, Y: 40, Z: 0}
		if err := r.w.SetBlock(hole, "air"); err != nil {
			t.Fatal(err)
		}
		rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 1, 1, 2)
		if err != nil {
			t.Fatalf("StartTunnel: %v", err)
		}
		if got := r.blockName(hole); got != "cobblestone" {
			t.Fatalf("floor under the agent: %q", got)
		}
		if n := r.w.CountOps(gridworld.OpPlace, start); n != 0 {
			t.Fatalf("planned cell got %d placement calls", n)
		}
		if rep.Placed != 1 || rep.Mined != 2 {
			t.Fatalf("report: %+v", rep)
		}
	})

	t.Run("strip uses the cell below the feet", func(t *testing.T) {
		r := newRig(t, noScan(geom.Cell{X: 0, Y: 43, Z: 1}))
		hole := geom.Cell{X: 0, Y: 42, Z: 1}
		if err := r.w.SetBlock(hole, "air"); err != nil {
			t.Fatal(err)
		}
		rep, err := r.e.StartStripMining(context.Background(), start, geom.East, 2, 0)
		if err != nil {
			t.Fatalf("StartStripMining: %v", err)
		}
		if got := r.blockName(hole); got != "cobblestone" {
			t.Fatalf("cell below the feet: %q", got)
		}
		if rep.Placed != 1 || rep.Mined != 4 {
			t.Fatalf("report: %+v", rep)
		}
	})

	t.Run("quarry uses two below the feet", func(t *testing.T) {
		r := newRig(t, noScan(geom.Cell{X: 0, Y: 44, Z: 0}))
		hole := geom.Cell{X: 0, Y: 42, Z: 0}
		if err := r.w.SetBlock(hole, "air"); err != nil {
			t.Fatal(err)
		}
		rep, err := r.e.StartQuarry(context.Background(), geom.Cell{X: 0, Y: 41, Z: 0}, geom.Cell{X: 1, Y: 41, Z: 1}, 1)
		if err != nil {
			t.Fatalf("StartQuarry: %v", err)
		}
		if got := r.blockName(hole); got != "cobblestone" {
			t.Fatalf("platform under the agent: %q", got)
		}
		if n := r.w.CountOps(gridworld.OpPlace, geom.Cell{X: 0, Y: 43, Z: 0}); n != 0 {
			t.Fatalf("one below the feet got %d placement calls", n)
		}
		if rep.Placed != 1 || rep.Mined != 4 {
			t.Fatalf("report: %+v", rep)
		}
	})
}

func TestLiquid_NoReferenceNeverDug(t *testing.T) {
	r := newRig(t, func(s *tuning.Settings, _ *gridworld.Options) {
		s.Cleanup.Enabled = false
		s.Obstacles.Holes = false
	})
	lava := geom.Cell{X: 2, Y: 41, Z: 0}
	above := lava.Above()
	// Nothing solid beside or below the lava to place against.
	for _, c := range []geom.Cell{{X: 1, Y: 41}, {X: 3, Y: 41}, {X: 2, Y: 40}, {X: 2, Y: 41, Z: 1}, {X: 2, Y: 41, Z: -1}} {
		if err := r.w.SetBlock(c, "air"); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.w.SetBlock(lava, "lava"); err != nil {
		t.Fatal(err)
	}

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpDig, lava); n != 0 {
		t.Fatalf("lava dug %d times", n)
	}
	if n := r.w.CountOps(gridworld.OpDig, above); n != 0 {
		t.Fatalf("cell over lava dug %d times", n)
	}
	if got := r.blockName(lava); got != "lava" {
		t.Fatalf("lava cell: %q", got)
	}
	abandoned := map[geom.Cell]bool{}
	for _, c := range rep.Abandoned {
		abandoned[c] = true
	}
	if len(rep.Abandoned) != 2 || !abandoned[lava] || !abandoned[above] {
		t.Fatalf("abandoned: %v", rep.Abandoned)
	}
	if r.j.count(miner.EventPlaceFail) == 0 {
		t.Fatalf("expected failed placements against the lava")
	}
}

func TestOutOfRange_DigRetriedCloser(t *testing.T) {
	r := newRig(t, func(_ *tuning.Settings, o *gridworld.Options) { o.Reach = 2 })
	far := geom.Cell{X: 2, Y: 42, Z: 0}

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpDig, far); n != 2 {
		t.Fatalf("expected one out-of-range dig and one retry, got %d", n)
	}
	closeIns := 0
	for _, op := range r.w.Ops() {
		if op.Kind == gridworld.OpGoto && op.Item == "mine-close" && op.Pos == far {
			closeIns++
		}
	}
	if closeIns != 1 {
		t.Fatalf("close approaches to %v: %d", far, closeIns)
	}
	if rep.Mined != 6 || len(rep.Abandoned) != 0 || r.j.count(miner.EventDigFail) != 0 {
		t.Fatalf("report: %+v fails=%d", rep, r.j.count(miner.EventDigFail))
	}
}

func TestOutOfRange_PlacementRetriedCloser(t *testing.T) {
	r := newRig(t, func(_ *tuning.Settings, o *gridworld.Options) { o.Reach = 2 })
	hole := geom.Cell{X: 2, Y: 40, Z: 0}
	if err := r.w.SetBlock(hole, "air"); err != nil {
		t.Fatal(err)
	}

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if n := r.w.CountOps(gridworld.OpPlace, hole); n != 2 {
		t.Fatalf("expected one out-of-range placement and one retry, got %d", n)
	}
	if got := r.blockName(hole); got != "cobblestone" {
		t.Fatalf("hole: %q", got)
	}
	placeGotos := 0
	for _, op := range r.w.Ops() {
		if op.Kind == gridworld.OpGoto && op.Item == "place" {
			placeGotos++
		}
	}
	if placeGotos != 1 || rep.Placed != 1 || len(rep.Abandoned) != 0 {
		t.Fatalf("place gotos=%d report: %+v", placeGotos, rep)
	}
}

// shortNav gives up one cell short of every target.
type shortNav struct {
	*gridworld.World
	trips int
}

func (n *shortNav) Goto(_ context.Context, target geom.Cell, _ bot.GotoOptions) error {
	n.trips++
	n.Teleport(target.Offset(-1, 0, 0))
	return fmt.Errorf("goto %v: %w", target, bot.ErrNavigation)
}

func TestNavigationFailure_InReachStillDigs(t *testing.T) {
	var nav *shortNav
	r := newRigNav(t, func(_ *tuning.Settings, o *gridworld.Options) {
		o.Spawn = geom.Cell{X: -10, Y: 41, Z: 0}
	}, func(w *gridworld.World) bot.Navigator {
		nav = &shortNav{World: w}
		return nav
	})

	rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 1, 1, 2)
	if err != nil {
		t.Fatalf("StartTunnel: %v", err)
	}
	if nav.trips != 1 {
		t.Fatalf("navigation trips: %d", nav.trips)
	}
	if r.blockName(start) != "air" || r.blockName(start.Above()) != "air" {
		t.Fatalf("cells left after a short navigation")
	}
	if rep.Mined != 2 || len(rep.Abandoned) != 0 || r.j.count(miner.EventDigFail) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestBridging_FallsBackPastDenyList(t *testing.T) {
	setup := func(s *tuning.Settings, _ *gridworld.Options) {
		s.BridgingMaterials = []string{"netherrack"}
		s.Valuables = []string{"cobblestone"}
	}
	hole := geom.Cell{X: 2, Y: 40, Z: 0}

	t.Run("first allowed item", func(t *testing.T) {
		r := newRig(t, setup)
		r.w.Give("dirt", 4)
		if err := r.w.SetBlock(hole, "air"); err != nil {
			t.Fatal(err)
		}
		rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
		if err != nil {
			t.Fatalf("StartTunnel: %v", err)
		}
		if got := r.blockName(hole); got != "dirt" {
			t.Fatalf("hole filled with %q", got)
		}
		if r.count("dirt") != 3 || rep.Placed != 1 {
			t.Fatalf("dirt=%d placed=%d", r.count("dirt"), rep.Placed)
		}
	})

	t.Run("nothing allowed", func(t *testing.T) {
		r := newRig(t, setup)
		if err := r.w.SetBlock(hole, "air"); err != nil {
			t.Fatal(err)
		}
		rep, err := r.e.StartTunnel(context.Background(), start, geom.East, 3, 1, 2)
		if err != nil {
			t.Fatalf("StartTunnel: %v", err)
		}
		if n := r.w.CountOps(gridworld.OpPlace, hole); n != 0 {
			t.Fatalf("placed a denied item %d times", n)
		}
		if got := r.blockName(hole); got != "air" {
			t.Fatalf("hole: %q", got)
		}
		if rep.Placed != 0 || r.j.count(miner.EventPlaceFail) == 0 {
			t.Fatalf("placed=%d placeFails=%d", rep.Placed, r.j.count(miner.EventPlaceFail))
		}
	})
}

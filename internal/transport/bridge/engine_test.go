package bridge

import (
	"testing"

	"voxelminer.ai/internal/coord"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/gridworld"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/protocol"
	"voxelminer.ai/internal/tuning"
)

func TestBridge_DrivesEngine(t *testing.T) {
	opts := gridworld.DefaultOptions()
	opts.Gen.OrePermille = 0
	opts.Spawn = geom.Cell{X: 0, Y: 41, Z: 0}
	opts.Kit = map[string]int{"iron_pickaxe": 1, "cobblestone": 16}
	w, err := gridworld.New(nil, opts)
	if err != nil {
		t.Fatalf("gridworld.New: %v", err)
	}
	s := tuning.Defaults()
	s.AgentID = "miner-a"
	s.VerifyDelay, s.SettleDelay = 0, 0
	s.Progress = tuning.Progress{}
	s.Deposit.OnFinish = false
	s.Deposit.Threshold = 0
	eng, err := miner.New(miner.Config{
		Settings: s, World: w, Navigator: w, Tools: w, Collector: w,
		Coordinator: coord.New("miner-a"),
	})
	if err != nil {
		t.Fatalf("miner.New: %v", err)
	}
	srv, err := NewServer(Config{Miner: eng, Locator: w})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)

	c := dial(t, srv)
	c.hello("")
	c.expect(protocol.TypeAck)
	c.command("t1", "tunnel", "east", "3", "1", "2")
	c.expect(protocol.TypeAck)
	rep := c.expect(protocol.TypeReport)
	if rep["planned"] != float64(6) || rep["processed"] != float64(6) || rep["remaining"] != float64(0) || rep["stopped"] != false {
		t.Fatalf("report: %v", rep)
	}
	for _, cell := range []geom.Cell{{X: 2, Y: 41, Z: 0}, {X: 2, Y: 42, Z: 0}} {
		if b, _ := w.BlockAt(cell); b.Name != "air" {
			t.Fatalf("%v still %s", cell, b.Name)
		}
	}
}

package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/protocol"
	"voxelminer.ai/internal/tuning"
)

type fakeMiner struct {
	mu      sync.Mutex
	calls   []string
	start   geom.Cell
	dir     geom.Direction
	length  int
	branch  int
	release chan struct{}
	once    sync.Once
	working atomic.Bool
	enabled atomic.Bool
	stopped atomic.Bool
}

func newFakeMiner() *fakeMiner {
	m := &fakeMiner{release: make(chan struct{})}
	m.enabled.Store(true)
	return m
}

func (m *fakeMiner) run(ctx context.Context, mode miner.Mode, planned int) (miner.Report, error) {
	m.working.Store(true)
	defer m.working.Store(false)
	select {
	case <-m.release:
	case <-ctx.Done():
	}
	return miner.Report{SessionID: "s-1", Mode: mode, Planned: planned, Mined: planned, Stopped: m.stopped.Load()}, nil
}

func (m *fakeMiner) record(call string, start geom.Cell, dir geom.Direction, n, branches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	m.start, m.dir, m.length, m.branch = start, dir, n, branches
}

func (m *fakeMiner) StartTunnel(ctx context.Context, start geom.Cell, dir geom.Direction, length, width, height int) (miner.Report, error) {
	m.record("tunnel", start, dir, length, 0)
	return m.run(ctx, miner.ModeTunnel, length)
}

func (m *fakeMiner) StartStripMining(ctx context.Context, start geom.Cell, dir geom.Direction, mainLength, branches int) (miner.Report, error) {
	m.record("strip", start, dir, mainLength, branches)
	return m.run(ctx, miner.ModeStrip, mainLength)
}

func (m *fakeMiner) StartQuarry(ctx context.Context, c1, c2 geom.Cell, depth int) (miner.Report, error) {
	m.record("quarry", c1, geom.DirNone, depth, 0)
	return m.run(ctx, miner.ModeQuarry, depth)
}

func (m *fakeMiner) StopMining() {
	m.stopped.Store(true)
	m.enabled.Store(false)
	m.finish()
}

func (m *fakeMiner) finish()         { m.once.Do(func() { close(m.release) }) }
func (m *fakeMiner) Enable()         { m.enabled.Store(true) }
func (m *fakeMiner) Disable()        { m.enabled.Store(false) }
func (m *fakeMiner) IsWorking() bool { return m.working.Load() }

func (m *fakeMiner) Status() miner.Status {
	mode := miner.ModeNone
	if m.working.Load() {
		mode = miner.ModeTunnel
	}
	return miner.Status{Enabled: m.enabled.Load(), Working: m.working.Load(), Mode: mode}
}

func (m *fakeMiner) Settings() tuning.Settings { return tuning.Defaults() }

type fixedFeet geom.Cell

func (f fixedFeet) Feet() geom.Cell { return geom.Cell(f) }

type client struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) send(v any) {
	c.t.Helper()
	if err := c.ws.WriteJSON(v); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *client) command(id string, args ...string) {
	c.send(protocol.CommandMsg{Type: protocol.TypeCommand, V: protocol.Version, ID: id, Name: "mine", Args: args})
}

// read returns the next frame after checking it against its schema.
func (c *client) read() map[string]any {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	if _, err := protocol.Validate(b); err != nil {
		c.t.Fatalf("server sent invalid %s: %v", b, err)
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func (c *client) expect(typ string) map[string]any {
	c.t.Helper()
	m := c.read()
	if m["type"] != typ {
		c.t.Fatalf("expected %s, got %v", typ, m)
	}
	return m
}

func (c *client) hello(secret string) {
	c.send(protocol.HelloMsg{Type: protocol.TypeHello, V: protocol.Version, Secret: secret, Client: "test"})
}

func newTestServer(t *testing.T, m Miner, secret string) *Server {
	t.Helper()
	srv, err := NewServer(Config{Miner: m, Locator: fixedFeet{X: 1, Y: 41, Z: 1}, Secret: secret})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func TestHandshake_Secret(t *testing.T) {
	srv := newTestServer(t, newFakeMiner(), "k3y")

	bad := dial(t, srv)
	bad.hello("nope")
	if m := bad.expect(protocol.TypeError); m["code"] != protocol.ErrDenied {
		t.Fatalf("expected E_DENIED, got %v", m)
	}

	good := dial(t, srv)
	good.hello("k3y")
	if m := good.expect(protocol.TypeAck); m["ack_for"] != protocol.TypeHello {
		t.Fatalf("hello ack: %v", m)
	}

	early := dial(t, srv)
	early.command("", "status")
	if m := early.expect(protocol.TypeError); m["code"] != protocol.ErrBadRequest {
		t.Fatalf("command before hello: %v", m)
	}
}

func TestCommand_TunnelUsesStreamedState(t *testing.T) {
	fm := newFakeMiner()
	srv := newTestServer(t, fm, "")
	c := dial(t, srv)
	c.hello("")
	c.expect(protocol.TypeAck)

	c.send(protocol.StateMsg{Type: protocol.TypeState, V: protocol.Version,
		Position:  protocol.Position{X: 0.5, Y: 41, Z: 0.5},
		Rotation:  protocol.Rotation{Yaw: 270},
		LookingAt: &geom.Cell{X: 5, Y: 40, Z: 5}})
	c.command("c1", "tunel", "10")
	if m := c.expect(protocol.TypeAck); m["id"] != "c1" {
		t.Fatalf("ack: %v", m)
	}
	fm.finish()
	rep := c.expect(protocol.TypeReport)
	if rep["mode"] != "tunnel" || rep["planned"] != float64(10) || rep["id"] != "c1" {
		t.Fatalf("report: %v", rep)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.start != (geom.Cell{X: 5, Y: 40, Z: 5}) || fm.dir != geom.East || fm.length != 10 {
		t.Fatalf("tunnel args: start=%v dir=%v len=%d", fm.start, fm.dir, fm.length)
	}
}

func TestCommand_BusyThenStop(t *testing.T) {
	fm := newFakeMiner()
	srv := newTestServer(t, fm, "")
	c := dial(t, srv)
	c.hello("")
	c.expect(protocol.TypeAck)

	c.command("a", "strip", "north", "16")
	c.expect(protocol.TypeAck)
	c.command("b", "quarry", "0", "40", "0", "3", "40", "3", "2")
	if m := c.expect(protocol.TypeError); m["code"] != protocol.ErrBusy || m["id"] != "b" {
		t.Fatalf("expected E_BUSY for b, got %v", m)
	}
	c.command("c", "stop")
	// The stop ack and the report race on the writer; accept either order.
	seen := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		m := c.read()
		seen[m["type"].(string)] = m
	}
	if seen[protocol.TypeAck] == nil || seen[protocol.TypeReport]["stopped"] != true {
		t.Fatalf("expected stop ack and stopped report, got %v", seen)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()
	if len(fm.calls) != 1 || fm.branch != tuning.Defaults().Strip.BranchCount || fm.start != (geom.Cell{X: 1, Y: 41, Z: 1}) {
		t.Fatalf("calls=%v branches=%d start=%v", fm.calls, fm.branch, fm.start)
	}
}

func TestCommand_BadRequestsAndStatus(t *testing.T) {
	fm := newFakeMiner()
	srv := newTestServer(t, fm, "")
	c := dial(t, srv)
	c.hello("")
	c.expect(protocol.TypeAck)

	c.command("1", "tunnel", "8")
	if m := c.expect(protocol.TypeError); m["code"] != protocol.ErrBadRequest {
		t.Fatalf("tunnel without direction or state: %v", m)
	}
	c.command("2", "fly")
	c.expect(protocol.TypeError)
	c.send(map[string]any{"type": "command", "v": 1, "name": "mine", "args": []int{1}})
	c.expect(protocol.TypeError)

	c.command("3", "disable")
	c.expect(protocol.TypeAck)
	c.command("4", "status")
	st := c.expect(protocol.TypeStatus)
	if st["enabled"] != false || st["working"] != false || st["mode"] != "none" {
		t.Fatalf("status: %v", st)
	}
	if srv.Busy() {
		t.Fatalf("server should be idle")
	}
}

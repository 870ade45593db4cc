// Package bridge serves the websocket control channel: a client says hello, streams
// its player state and sends chat-style mine commands that drive the engine.
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/protocol"
	"voxelminer.ai/internal/tuning"
)

// Miner is the engine surface the bridge drives. *miner.Engine satisfies it.
type Miner interface {
	StartTunnel(ctx context.Context, start geom.Cell, dir geom.Direction, length, width, height int) (miner.Report, error)
	StartStripMining(ctx context.Context, start geom.Cell, dir geom.Direction, mainLength, branches int) (miner.Report, error)
	StartQuarry(ctx context.Context, corner1, corner2 geom.Cell, depth int) (miner.Report, error)
	StopMining()
	Enable()
	Disable()
	IsWorking() bool
	Status() miner.Status
	Settings() tuning.Settings
}

// Locator reports where the agent stands; used when no state has been streamed.
type Locator interface {
	Feet() geom.Cell
}

type Config struct {
	Miner   Miner
	Locator Locator
	// Secret, when set, must match the hello frame's secret.
	Secret string
	Logger *log.Logger
}

type Server struct {
	miner   Miner
	locator Locator
	secret  string
	log     *log.Logger

	upgrader websocket.Upgrader

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	stateMu sync.Mutex
	state   *protocol.StateMsg
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Miner == nil {
		return nil, errors.New("bridge: miner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		miner:   cfg.Miner,
		locator: cfg.Locator,
		secret:  cfg.Secret,
		log:     cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // local bridge
		},
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Close stops a running session and waits for it to return.
func (s *Server) Close() {
	s.miner.StopMining()
	s.cancel()
	s.wg.Wait()
}

// Busy reports whether a session started over the bridge is still running.
func (s *Server) Busy() bool { return s.running.Load() || s.miner.IsWorking() }

// LastState returns the most recent streamed player state.
func (s *Server) LastState() (protocol.StateMsg, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state == nil {
		return protocol.StateMsg{}, false
	}
	return *s.state, true
}

type conn struct {
	ws     *websocket.Conn
	out    chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    *log.Logger
}

// send queues v for the writer goroutine. Frames are dropped when the peer is gone
// or too slow.
func (c *conn) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Printf("marshal %T: %v", v, err)
		return
	}
	select {
	case <-c.ctx.Done():
	case c.out <- b:
	default:
		c.log.Printf("outbound queue full, dropping %T", v)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.SetReadLimit(64 * 1024)

		if !s.handshake(ws) {
			return
		}

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()
		c := &conn{ws: ws, out: make(chan []byte, 32), ctx: ctx, cancel: cancel, log: s.log}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-c.out:
					_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = ws.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := ws.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(c, msg)
		}
	}
}

func (s *Server) handshake(ws *websocket.Conn) bool {
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return false
	}
	typ, err := protocol.Validate(msg)
	if err != nil || typ != protocol.TypeHello {
		_ = writeJSON(ws, protocol.NewError(protocol.ErrBadRequest, "", "expected hello"))
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected hello"), time.Now().Add(time.Second))
		return false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return false
	}
	if s.secret != "" && subtle.ConstantTimeCompare([]byte(hello.Secret), []byte(s.secret)) != 1 {
		s.log.Printf("hello from %s rejected: bad secret", ws.RemoteAddr())
		_ = writeJSON(ws, protocol.NewError(protocol.ErrDenied, "", "bad secret"))
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "denied"), time.Now().Add(time.Second))
		return false
	}
	s.log.Printf("client %q connected from %s", hello.Client, ws.RemoteAddr())
	return writeJSON(ws, protocol.NewAck(protocol.TypeHello, "", "")) == nil
}

func (s *Server) dispatch(c *conn, msg []byte) {
	typ, err := protocol.Validate(msg)
	if err != nil {
		c.send(protocol.NewError(protocol.ErrBadRequest, "", err.Error()))
		return
	}
	switch typ {
	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(msg, &st); err != nil {
			return
		}
		s.stateMu.Lock()
		s.state = &st
		s.stateMu.Unlock()
	case protocol.TypeCommand:
		var cmd protocol.CommandMsg
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.send(protocol.NewError(protocol.ErrBadRequest, "", err.Error()))
			return
		}
		s.handleCommand(c, cmd)
	case protocol.TypeHello:
		c.send(protocol.NewAck(protocol.TypeHello, "", "already connected"))
	default:
		c.send(protocol.NewError(protocol.ErrBadRequest, "", fmt.Sprintf("unexpected %s message", typ)))
	}
}

func (s *Server) handleCommand(c *conn, cmd protocol.CommandMsg) {
	s.log.Printf("command: %s %s", cmd.Name, strings.Join(cmd.Args, " "))
	req, err := ParseCommand(cmd.Name, cmd.Args)
	if err != nil {
		c.send(protocol.NewError(protocol.ErrBadRequest, cmd.ID, err.Error()))
		return
	}
	switch req.Op {
	case OpStop:
		s.miner.StopMining()
		c.send(protocol.NewAck(protocol.TypeCommand, cmd.ID, "stopping"))
	case OpEnable:
		s.miner.Enable()
		c.send(protocol.NewAck(protocol.TypeCommand, cmd.ID, "enabled"))
	case OpDisable:
		s.miner.Disable()
		c.send(protocol.NewAck(protocol.TypeCommand, cmd.ID, "disabled"))
	case OpStatus:
		c.send(statusMsg(cmd.ID, s.miner.Status()))
	default:
		s.startSession(c, cmd.ID, req)
	}
}

// startSession runs the mining call on its own goroutine so the connection keeps
// serving stop and status while the session blocks.
func (s *Server) startSession(c *conn, id string, req Request) {
	if s.miner.IsWorking() || !s.running.CompareAndSwap(false, true) {
		c.send(protocol.NewError(protocol.ErrBusy, id, "already mining"))
		return
	}
	run, desc, err := s.resolve(req)
	if err != nil {
		s.running.Store(false)
		c.send(protocol.NewError(protocol.ErrBadRequest, id, err.Error()))
		return
	}
	c.send(protocol.NewAck(protocol.TypeCommand, id, desc))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		rep, err := run(s.ctx)
		if err != nil {
			s.log.Printf("%s failed: %v", desc, err)
		}
		c.send(reportMsg(id, rep, err))
	}()
}

type runFunc func(ctx context.Context) (miner.Report, error)

// resolve fills omitted start, direction and sizes from the streamed state and the
// engine settings.
func (s *Server) resolve(req Request) (runFunc, string, error) {
	start, yaw, haveYaw := s.defaults()
	dir := req.Dir
	if dir == geom.DirNone && req.Op != OpQuarry {
		if !haveYaw {
			return nil, "", errors.New("no direction given and no player state received")
		}
		dir = geom.FromYaw(yaw)
	}
	switch req.Op {
	case OpTunnel:
		desc := fmt.Sprintf("tunnel %s x%d from %v", dir, req.Length, start)
		return func(ctx context.Context) (miner.Report, error) {
			return s.miner.StartTunnel(ctx, start, dir, req.Length, req.Width, req.Height)
		}, desc, nil
	case OpStrip:
		branches := req.Branches
		if !req.BranchesSet {
			branches = s.miner.Settings().Strip.BranchCount
		}
		desc := fmt.Sprintf("strip %s with %d branches from %v", dir, branches, start)
		return func(ctx context.Context) (miner.Report, error) {
			return s.miner.StartStripMining(ctx, start, dir, req.Length, branches)
		}, desc, nil
	case OpQuarry:
		desc := fmt.Sprintf("quarry %v..%v", req.Corner1, req.Corner2)
		return func(ctx context.Context) (miner.Report, error) {
			return s.miner.StartQuarry(ctx, req.Corner1, req.Corner2, req.Depth)
		}, desc, nil
	}
	return nil, "", fmt.Errorf("unsupported op %q", req.Op)
}

// defaults picks the start cell: the block under the crosshair, else the streamed
// position, else the agent's own feet.
func (s *Server) defaults() (start geom.Cell, yaw float64, haveYaw bool) {
	if s.locator != nil {
		start = s.locator.Feet()
	}
	st, ok := s.LastState()
	if !ok {
		return start, 0, false
	}
	switch {
	case st.LookingAt != nil:
		start = *st.LookingAt
	default:
		start = geom.Floor(st.Position.X, st.Position.Y, st.Position.Z)
	}
	return start, st.Rotation.Yaw, true
}

func statusMsg(id string, st miner.Status) protocol.StatusMsg {
	return protocol.StatusMsg{
		Type:        protocol.TypeStatus,
		V:           protocol.Version,
		ID:          id,
		Enabled:     st.Enabled,
		Working:     st.Working,
		Mode:        string(st.Mode),
		SessionID:   st.SessionID,
		PlanIndex:   st.PlanIndex,
		PlanLen:     st.PlanLen,
		BlocksMined: st.BlocksMined,
	}
}

func reportMsg(id string, rep miner.Report, err error) protocol.ReportMsg {
	m := protocol.ReportMsg{
		Type:      protocol.TypeReport,
		V:         protocol.Version,
		ID:        id,
		SessionID: rep.SessionID,
		Mode:      string(rep.Mode),
		Planned:   rep.Planned,
		Processed: rep.Processed,
		Mined:     rep.Mined,
		Placed:    rep.Placed,
		Deposited: rep.Deposited,
		Cleaned:   rep.Cleaned,
		Remaining: rep.Remaining,
		Stopped:   rep.Stopped,
		Abandoned: rep.Abandoned,
	}
	if m.Mode == "" {
		m.Mode = string(miner.ModeNone)
	}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

func writeJSON(ws *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return ws.WriteMessage(websocket.TextMessage, b)
}

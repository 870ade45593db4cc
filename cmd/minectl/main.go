// Command minectl sends one mine command to minerd's bridge and prints the replies.
//
//	minectl -url ws://127.0.0.1:8765/v1/bridge tunnel north 20
//	minectl status
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/protocol"
)

func main() {
	var (
		url     = flag.String("url", "ws://127.0.0.1:8765/v1/bridge", "bridge ws url")
		secret  = flag.String("secret", "", "shared secret (or set MINERD_SECRET)")
		yaw     = flag.Float64("yaw", 0, "player yaw to stream before the command (with -state)")
		look    = flag.String("look", "", "crosshair block x,y,z to stream before the command (with -state)")
		pos     = flag.String("pos", "", "player position x,y,z to stream before the command (with -state)")
		state   = flag.Bool("state", false, "stream one state frame before the command")
		wait    = flag.Bool("wait", true, "wait for the session report after a start command")
		timeout = flag.Duration("timeout", 30*time.Minute, "how long to wait for replies")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[minectl] ", log.LstdFlags|log.Lmicroseconds)
	args := flag.Args()
	if len(args) > 0 && strings.EqualFold(args[0], "mine") {
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: minectl [flags] tunnel|strip|quarry|stop|enable|disable|status [args...]")
		os.Exit(2)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sec := *secret
	if sec == "" {
		sec = os.Getenv("MINERD_SECRET")
	}
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, V: protocol.Version, Secret: sec, Client: "minectl"}); err != nil {
		logger.Fatalf("send hello: %v", err)
	}

	if *state {
		st := protocol.StateMsg{Type: protocol.TypeState, V: protocol.Version, Rotation: protocol.Rotation{Yaw: *yaw}}
		if *pos != "" {
			c, err := parseCell(*pos)
			if err != nil {
				logger.Fatalf("-pos: %v", err)
			}
			st.Position = protocol.Position{X: float64(c.X) + 0.5, Y: float64(c.Y), Z: float64(c.Z) + 0.5}
		}
		if *look != "" {
			c, err := parseCell(*look)
			if err != nil {
				logger.Fatalf("-look: %v", err)
			}
			st.LookingAt = &c
		}
		if err := conn.WriteJSON(st); err != nil {
			logger.Fatalf("send state: %v", err)
		}
	}

	id := uuid.NewString()[:8]
	cmd := protocol.CommandMsg{Type: protocol.TypeCommand, V: protocol.Version, ID: id, Name: "mine", Args: args}
	if err := conn.WriteJSON(cmd); err != nil {
		logger.Fatalf("send command: %v", err)
	}

	deadline := time.Now().Add(*timeout)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		fmt.Println(string(msg))
		switch base.Type {
		case protocol.TypeError:
			os.Exit(1)
		case protocol.TypeStatus, protocol.TypeReport:
			return
		case protocol.TypeAck:
			if strings.Contains(string(msg), `"ack_for":"hello"`) {
				continue
			}
			if !*wait || !isStart(args[0]) {
				return
			}
		}
	}
}

func isStart(op string) bool {
	switch strings.ToLower(op) {
	case "stop", "enable", "disable", "status":
		return false
	}
	return true
}

func parseCell(s string) (geom.Cell, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return geom.Cell{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return geom.Cell{}, err
		}
		v[i] = n
	}
	return geom.FromArray(v), nil
}

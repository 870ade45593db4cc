// Command admin inspects a miner's data directory and talks to a running minerd.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxelminer.ai/internal/persistence/indexdb"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			httpCmd("state", http.MethodGet, "/v1/status", os.Args[2:])
			return
		case "snapshot":
			httpCmd("snapshot", http.MethodPost, "/v1/snapshot", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "agents"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	agentID := fs.String("agent", "", "agent id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	session := fs.String("session", "", "session id (abandoned)")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*agentID) == "" {
			fmt.Fprintln(os.Stderr, "missing -agent or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "agents", *agentID, "index", "sessions.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch q {
	case "sessions":
		rows, err := idx.Sessions(ctx, *agentID, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			fmt.Printf("%s\t%s\t%s\t%-6s\tstart=%d,%d,%d\tplanned=%d processed=%d mined=%d abandoned=%d placed=%d deposited=%d remaining=%d stopped=%v\t%s\n",
				r.StartedAt.Format(time.RFC3339), r.SessionID, r.AgentID, r.Mode, r.Start.X, r.Start.Y, r.Start.Z,
				r.Planned, r.Processed, r.Mined, r.Abandoned, r.Placed, r.Deposited, r.Remaining, r.Stopped, r.Result)
		}
	case "abandoned":
		if strings.TrimSpace(*session) == "" {
			fmt.Fprintln(os.Stderr, "missing -session")
			os.Exit(2)
		}
		cells, err := idx.AbandonedCells(ctx, *session)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, c := range cells {
			fmt.Printf("%d %d %d\n", c.X, c.Y, c.Z)
		}
	case "mined":
		n, err := idx.MinedTotal(ctx, *agentID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		fmt.Println(n)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want sessions, abandoned or mined)")
		os.Exit(2)
	}
}

func httpCmd(name, method, route string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8765", "minerd base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + route
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

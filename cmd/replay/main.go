// Command replay audits a miner's journal: it folds the events back into
// per-session tallies, checks that they agree with each other and optionally
// with the session index and the saved world snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voxelminer.ai/internal/persistence/indexdb"
	"voxelminer.ai/internal/persistence/journal"
	"voxelminer.ai/internal/persistence/snapshot"
)

func main() {
	var (
		agentDir = flag.String("agent", "./data/agents/miner-1", "agent data directory (holds events/, index/ and world.snap.zst)")
		useIndex = flag.Bool("index", true, "cross-check tallies against the session index when present")
		verbose  = flag.Bool("v", false, "print every session, not just the ones with issues")
	)
	flag.Parse()

	snapPath := filepath.Join(*agentDir, "world.snap.zst")
	if h, err := snapshot.ReadHeader(snapPath); err == nil {
		fmt.Printf("snapshot v%d agent=%s saved=%s digest=%.12s\n", h.Version, h.AgentID, h.SavedAt.Format(time.RFC3339), h.Digest)
	}

	events, err := journal.ReadDir(*agentDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read journal:", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no journal segments under", filepath.Join(*agentDir, "events"))
		os.Exit(1)
	}
	tallies := journal.Audit(events)

	rows := map[string]indexdb.SessionRow{}
	dbPath := filepath.Join(*agentDir, "index", "sessions.sqlite")
	if _, err := os.Stat(dbPath); *useIndex && err == nil {
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		list, err := idx.Sessions(context.Background(), "", len(tallies)+100)
		_ = idx.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "query index:", err)
			os.Exit(1)
		}
		for _, r := range list {
			rows[r.SessionID] = r
		}
	}

	bad, mined := 0, 0
	for _, t := range tallies {
		issues := t.Issues()
		if r, ok := rows[t.SessionID]; ok {
			issues = append(issues, compareRow(t, r)...)
		} else if len(rows) > 0 && t.Complete() {
			issues = append(issues, "missing from index")
		}
		mined += t.DigOK
		if len(issues) > 0 {
			bad++
		}
		if len(issues) == 0 && !*verbose {
			continue
		}
		fmt.Printf("%s %s %-6s planned=%d mined=%d abandoned=%d placed=%d deposits=%d(%d items) cleaned=%d result=%q\n",
			t.Started.Format(time.RFC3339), t.SessionID, t.Mode, t.Planned, t.DigOK, t.Abandoned, t.Placed, t.Deposits, t.Deposited, t.Cleaned, t.Result)
		for _, is := range issues {
			fmt.Printf("    ! %s\n", is)
		}
	}
	fmt.Printf("audit: events=%d sessions=%d mined=%d with_issues=%d\n", len(events), len(tallies), mined, bad)
	if bad > 0 {
		os.Exit(1)
	}
}

func compareRow(t *journal.Tally, r indexdb.SessionRow) []string {
	var out []string
	check := func(name string, inJournal, inIndex int) {
		if inJournal != inIndex {
			out = append(out, fmt.Sprintf("%s: journal=%d index=%d", name, inJournal, inIndex))
		}
	}
	check("mined", t.DigOK, r.Mined)
	check("placed", t.Placed, r.Placed)
	check("deposited", t.Deposited, r.Deposited)
	check("abandoned", t.Abandoned, r.Abandoned)
	return out
}

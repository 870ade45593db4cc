package indexdb

import (
	"bytes"
	"context"
	"database/sql"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"voxelminer.ai/internal/catalogs"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/tuning"
)

func TestSQLiteIndex_RecordSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ctx := context.Background()
	t0 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	idx.RecordSession(miner.Summary{
		SessionID: "a", AgentID: "miner-a", Mode: miner.ModeTunnel,
		Start: geom.Cell{X: 1, Y: 40, Z: -2}, StartedAt: t0, EndedAt: t0.Add(time.Minute),
		Planned: 12, Processed: 12, Mined: 10, Placed: 2, Remaining: 0, Result: "ok",
		Abandoned: []geom.Cell{{X: 5, Y: 40, Z: -2}, {X: 6, Y: 41, Z: -2}},
	})
	idx.RecordSession(miner.Summary{
		SessionID: "b", AgentID: "miner-a", Mode: miner.ModeQuarry,
		StartedAt: t0.Add(time.Hour), EndedAt: t0.Add(2 * time.Hour),
		Planned: 50, Processed: 20, Mined: 20, Remaining: 30, Stopped: true, Result: "stopped",
	})
	idx.RecordSession(miner.Summary{SessionID: "c", AgentID: "miner-b", Mined: 7, StartedAt: t0})
	idx.RecordSession(miner.Summary{AgentID: "no-id"})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	rows, err := idx.Sessions(ctx, "miner-a", 10)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(rows) != 2 || rows[0].SessionID != "b" || rows[1].SessionID != "a" {
		t.Fatalf("expected newest first: %+v", rows)
	}
	if !rows[0].Stopped || rows[0].Remaining != 30 || rows[0].Mode != "quarry" {
		t.Fatalf("quarry row: %+v", rows[0])
	}
	if rows[1].Abandoned != 2 || rows[1].Start != (geom.Cell{X: 1, Y: 40, Z: -2}) || !rows[1].StartedAt.Equal(t0) {
		t.Fatalf("tunnel row: %+v", rows[1])
	}
	all, _ := idx.Sessions(ctx, "", 0)
	if len(all) != 3 {
		t.Fatalf("all sessions: %d", len(all))
	}

	cells, err := idx.AbandonedCells(ctx, "a")
	if err != nil {
		t.Fatalf("AbandonedCells: %v", err)
	}
	if len(cells) != 2 || cells[1] != (geom.Cell{X: 6, Y: 41, Z: -2}) {
		t.Fatalf("abandoned: %v", cells)
	}
	if n, _ := idx.MinedTotal(ctx, "miner-a"); n != 30 {
		t.Fatalf("mined total: %d", n)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.RecordSession(miner.Summary{SessionID: "late"})
}

func TestSQLiteIndex_UpsertConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.UpsertConfig(tuning.Defaults(), catalogs.Default()); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM configs`).Scan(&n); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if n != 3 {
		t.Fatalf("config rows: %d", n)
	}
	var v string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v); err != nil || v != "1" {
		t.Fatalf("schema_version: %q %v", v, err)
	}
}

func TestSQLiteIndex_FailedWriteCountsDropped(t *testing.T) {
	var buf bytes.Buffer
	idx, err := openSQLite(filepath.Join(t.TempDir(), "index.db"), 16, log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("openSQLite: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	idx.RecordSession(miner.Summary{SessionID: "a", AgentID: "miner-a"})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if _, err := idx.db.Exec(`DROP TABLE abandoned_cells`); err != nil {
		t.Fatalf("drop: %v", err)
	}

	idx.RecordSession(miner.Summary{SessionID: "b", AgentID: "miner-a", Abandoned: []geom.Cell{{X: 1, Y: 40}}})
	idx.RecordSession(miner.Summary{SessionID: "c", AgentID: "miner-a"})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if n := idx.Dropped(); n != 1 {
		t.Fatalf("dropped: %d", n)
	}
	rows, err := idx.Sessions(ctx, "miner-a", 0)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	got := map[string]bool{}
	for _, r := range rows {
		got[r.SessionID] = true
	}
	if len(rows) != 2 || !got["a"] || !got["c"] || got["b"] {
		t.Fatalf("sessions: %+v", rows)
	}
	if !strings.Contains(buf.String(), "rolled back 1 summaries") {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

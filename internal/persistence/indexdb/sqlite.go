// Package indexdb keeps a queryable SQLite index of finished mining sessions.
// The event journal stays the source of truth; rows here may be dropped under load.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelminer.ai/internal/catalogs"
	"voxelminer.ai/internal/geom"
	"voxelminer.ai/internal/miner"
	"voxelminer.ai/internal/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	log *log.Logger

	closed  atomic.Bool
	dropped atomic.Int64
}

type req struct {
	session miner.Summary
	flushed chan struct{}
}

// SessionRow is one row of the sessions table.
type SessionRow struct {
	SessionID string
	AgentID   string
	Mode      string
	Start     geom.Cell
	StartedAt time.Time
	EndedAt   time.Time
	Planned   int
	Processed int
	Mined     int
	Placed    int
	Deposited int
	Cleaned   int
	Remaining int
	Abandoned int
	Stopped   bool
	Result    string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 4096, log.New(os.Stdout, "[indexdb] ", log.LstdFlags|log.Lmicroseconds))
}

func openSQLite(path string, queue int, logger *log.Logger) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		ch:  make(chan req, queue),
		log: logger,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			start_x INTEGER NOT NULL,
			start_y INTEGER NOT NULL,
			start_z INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			planned INTEGER NOT NULL,
			processed INTEGER NOT NULL,
			mined INTEGER NOT NULL,
			placed INTEGER NOT NULL,
			deposited INTEGER NOT NULL,
			cleaned INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			abandoned INTEGER NOT NULL,
			stopped INTEGER NOT NULL,
			result TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_agent_started ON sessions(agent_id, started_at);`,
		`CREATE TABLE IF NOT EXISTS abandoned_cells (
			session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_abandoned_pos ON abandoned_cells(x, z, y);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts summaries that never reached the database: the queue was full or
// their transaction failed.
func (s *SQLiteIndex) Dropped() int64 { return s.dropped.Load() }

// RecordSession queues a finished session. It never blocks the caller.
func (s *SQLiteIndex) RecordSession(sum miner.Summary) {
	if s == nil || s.closed.Load() || sum.SessionID == "" {
		return
	}
	select {
	case s.ch <- req{session: sum}:
	default:
		s.dropped.Add(1)
	}
}

// Flush waits until everything queued before the call is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{flushed: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpsertConfig stores the settings and catalog digests a process runs with.
func (s *SQLiteIndex) UpsertConfig(cfg tuning.Settings, cats *catalogs.Catalogs) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		b, _ := json.Marshal(cfg)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "settings", digest: hex.EncodeToString(sum[:]), json: b})
	}
	if cats != nil {
		if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
			rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
		}
		if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
			rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
		}
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, err := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,agent_id,mode,start_x,start_y,start_z,started_at,ended_at,planned,processed,mined,placed,deposited,cleaned,remaining,abandoned,stopped,result) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.logf("prepare session insert: %v; summaries will be dropped", err)
	}
	insertCell, err := s.db.Prepare(`INSERT OR REPLACE INTO abandoned_cells(session_id,seq,x,y,z) VALUES(?,?,?,?,?)`)
	if err != nil {
		s.logf("prepare abandoned cell insert: %v; summaries will be dropped", err)
	}
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertCell != nil {
			_ = insertCell.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.logf("begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	reset := func() {
		tx = nil
		opCount = 0
		pending = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.dropped.Add(int64(pending))
			s.logf("commit: %v; dropped %d summaries", err, pending)
		}
		reset()
	}
	rollback := func(cause error) {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.dropped.Add(int64(pending))
		s.logf("write failed: %v; rolled back %d summaries", cause, pending)
		reset()
	}

	for r := range s.ch {
		if r.flushed != nil {
			commit()
			close(r.flushed)
			continue
		}
		begin()
		if tx == nil || insertSession == nil || insertCell == nil {
			s.dropped.Add(1)
			continue
		}
		se := r.session
		pending++
		if _, err := tx.Stmt(insertSession).Exec(
			se.SessionID,
			se.AgentID,
			string(se.Mode),
			se.Start.X, se.Start.Y, se.Start.Z,
			se.StartedAt.UTC().Format(time.RFC3339Nano),
			se.EndedAt.UTC().Format(time.RFC3339Nano),
			se.Planned,
			se.Processed,
			se.Mined,
			se.Placed,
			se.Deposited,
			se.Cleaned,
			se.Remaining,
			len(se.Abandoned),
			boolInt(se.Stopped),
			se.Result,
		); err != nil {
			rollback(err)
			continue
		}
		opCount++
		for i, c := range se.Abandoned {
			if _, err := tx.Stmt(insertCell).Exec(se.SessionID, i, c.X, c.Y, c.Z); err != nil {
				rollback(err)
				break
			}
			opCount++
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func (s *SQLiteIndex) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package indexdb

import (
	"context"
	"time"

	"voxelminer.ai/internal/geom"
)

// Sessions returns the most recent sessions, newest first. An empty agentID
// matches every agent.
func (s *SQLiteIndex) Sessions(ctx context.Context, agentID string, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session_id,agent_id,mode,start_x,start_y,start_z,started_at,ended_at,
		planned,processed,mined,placed,deposited,cleaned,remaining,abandoned,stopped,result
		FROM sessions WHERE (?='' OR agent_id=?) ORDER BY started_at DESC, session_id LIMIT ?`, agentID, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			r              SessionRow
			started, ended string
			stopped        int
		)
		if err := rows.Scan(&r.SessionID, &r.AgentID, &r.Mode, &r.Start.X, &r.Start.Y, &r.Start.Z, &started, &ended,
			&r.Planned, &r.Processed, &r.Mined, &r.Placed, &r.Deposited, &r.Cleaned, &r.Remaining, &r.Abandoned, &stopped, &r.Result); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)
		r.Stopped = stopped != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// AbandonedCells lists the cells a session gave up on, in abandonment order.
func (s *SQLiteIndex) AbandonedCells(ctx context.Context, sessionID string) ([]geom.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT x,y,z FROM abandoned_cells WHERE session_id=? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []geom.Cell
	for rows.Next() {
		var c geom.Cell
		if err := rows.Scan(&c.X, &c.Y, &c.Z); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MinedTotal sums mined blocks across every recorded session of agentID.
func (s *SQLiteIndex) MinedTotal(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(mined),0) FROM sessions WHERE agent_id=?`, agentID).Scan(&n)
	return n, err
}

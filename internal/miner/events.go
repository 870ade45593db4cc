package miner

import (
	"time"

	"voxelminer.ai/internal/geom"
)

type EventType string

const (
	EventSessionStart EventType = "SESSION_START"
	EventDigOK        EventType = "DIG_OK"
	EventDigFail      EventType = "DIG_FAIL"
	EventAbandon      EventType = "ABANDON"
	EventPlace        EventType = "PLACE"
	EventPlaceFail    EventType = "PLACE_FAIL"
	EventDeposit      EventType = "DEPOSIT"
	EventProgress     EventType = "PROGRESS"
	EventCleanup      EventType = "CLEANUP"
	EventSessionEnd   EventType = "SESSION_END"
)

// Event is one line of the session journal.
type Event struct {
	Time      time.Time  `json:"t"`
	SessionID string     `json:"session_id"`
	AgentID   string     `json:"agent_id"`
	Mode      Mode       `json:"mode"`
	Type      EventType  `json:"type"`
	Pos       *geom.Cell `json:"pos,omitempty"`
	Item      string     `json:"item,omitempty"`
	Count     int        `json:"count,omitempty"`
	Attempt   int        `json:"attempt,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Summary is the per-session row written to the session index.
type Summary struct {
	SessionID string
	AgentID   string
	Mode      Mode
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
	Stopped   bool
	Result    string
	Abandoned []geom.Cell
}

type EventSink interface {
	WriteEvent(ev Event) error
}

type SessionSink interface {
	RecordSession(s Summary)
}

func cellPtr(c geom.Cell) *geom.Cell { return &c }

func (e *Engine) emit(s *Session, ev Event) {
	if e.journal == nil {
		return
	}
	ev.Time = time.Now().UTC()
	ev.SessionID = s.ID
	ev.AgentID = s.cfg.AgentID
	ev.Mode = s.Mode
	if err := e.journal.WriteEvent(ev); err != nil {
		e.log.Printf("journal: %v", err)
	}
}

func summaryOf(s *Session, rep Report, result string) Summary {
	return Summary{
		SessionID: s.ID,
		AgentID:   s.cfg.AgentID,
		Mode:      s.Mode,
		Start:     s.Start,
		StartedAt: s.Started.UTC(),
		EndedAt:   s.Started.Add(rep.Duration).UTC(),
		Planned:   rep.Planned,
		Processed: rep.Processed,
		Mined:     rep.Mined,
		Placed:    rep.Placed,
		Deposited: rep.Deposited,
		Cleaned:   rep.Cleaned,
		Remaining: rep.Remaining,
		Stopped:   rep.Stopped,
		Result:    result,
		Abandoned: rep.Abandoned,
	}
}

package journal

import (
	"fmt"
	"sort"
	"time"

	"voxelminer.ai/internal/miner"
)

// Tally is what the journal says about one session.
type Tally struct {
	SessionID string
	AgentID   string
	Mode      miner.Mode
	Started   time.Time
	Ended     time.Time
	Planned   int
	DigOK     int
	DigFail   int
	Abandoned int
	Placed    int
	PlaceFail int
	Deposits  int
	Deposited int
	Cleaned   int
	EndMined  int
	Result    string

	hasStart bool
	hasEnd   bool
	late     int
}

// Issues lists the ways the session's events disagree with each other.
func (t *Tally) Issues() []string {
	var out []string
	if !t.hasStart {
		out = append(out, "no SESSION_START")
	}
	if !t.hasEnd {
		out = append(out, "no SESSION_END")
		return out
	}
	if t.DigOK != t.EndMined {
		out = append(out, fmt.Sprintf("DIG_OK=%d but SESSION_END mined=%d", t.DigOK, t.EndMined))
	}
	if t.late > 0 {
		out = append(out, fmt.Sprintf("%d events after SESSION_END", t.late))
	}
	return out
}

func (t *Tally) Complete() bool { return t.hasStart && t.hasEnd }

// Audit folds events into per-session tallies ordered by start time.
func Audit(events []miner.Event) []*Tally {
	by := map[string]*Tally{}
	for _, ev := range events {
		t := by[ev.SessionID]
		if t == nil {
			t = &Tally{SessionID: ev.SessionID, AgentID: ev.AgentID, Mode: ev.Mode, Started: ev.Time}
			by[ev.SessionID] = t
		}
		if t.hasEnd {
			t.late++
			continue
		}
		switch ev.Type {
		case miner.EventSessionStart:
			t.hasStart = true
			t.Started = ev.Time
			t.Planned = ev.Count
		case miner.EventDigOK:
			t.DigOK++
		case miner.EventDigFail:
			t.DigFail++
		case miner.EventAbandon:
			t.Abandoned++
		case miner.EventPlace:
			t.Placed++
		case miner.EventPlaceFail:
			t.PlaceFail++
		case miner.EventDeposit:
			t.Deposits++
			t.Deposited += ev.Count
		case miner.EventCleanup:
			t.Cleaned = ev.Count
		case miner.EventSessionEnd:
			t.hasEnd = true
			t.Ended = ev.Time
			t.EndMined = ev.Count
			t.Result = ev.Message
		}
	}
	out := make([]*Tally, 0, len(by))
	for _, t := range by {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.Before(out[j].Started)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// ReadDir reads every segment under dir in order.
func ReadDir(dir string) ([]miner.Event, error) {
	files, err := Files(dir)
	if err != nil {
		return nil, err
	}
	var out []miner.Event
	for _, p := range files {
		evs, err := ReadFile(p)
		if err != nil {
			return out, err
		}
		out = append(out, evs...)
	}
	return out, nil
}

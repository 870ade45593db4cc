package protocol

import "voxelminer.ai/internal/geom"

// hello (client -> server). Must be the first frame on a connection.
type HelloMsg struct {
	Type   string `json:"type"`
	V      int    `json:"v"`
	Secret string `json:"secret,omitempty"`
	Client string `json:"client,omitempty"`
}

// command (client -> server): a chat command split into words, e.g. name "mine",
// args ["tunnel","north","20"].
type CommandMsg struct {
	Type string   `json:"type"`
	V    int      `json:"v"`
	ID   string   `json:"id,omitempty"`
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
}

// state (client -> server), streamed a few times per second.
type StateMsg struct {
	Type      string     `json:"type"`
	V         int        `json:"v"`
	Position  Position   `json:"position"`
	Rotation  Rotation   `json:"rotation"`
	LookingAt *geom.Cell `json:"lookingAt,omitempty"`
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Rotation struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

type AckMsg struct {
	Type    string `json:"type"`
	V       int    `json:"v"`
	AckFor  string `json:"ack_for"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	V       int    `json:"v"`
	Code    string `json:"code"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

type StatusMsg struct {
	Type        string `json:"type"`
	V           int    `json:"v"`
	ID          string `json:"id,omitempty"`
	Enabled     bool   `json:"enabled"`
	Working     bool   `json:"working"`
	Mode        string `json:"mode"`
	SessionID   string `json:"session_id,omitempty"`
	PlanIndex   int    `json:"plan_index"`
	PlanLen     int    `json:"plan_len"`
	BlocksMined int    `json:"blocks_mined"`
}

// report (server -> client) is pushed when a session started over the bridge ends.
type ReportMsg struct {
	Type      string      `json:"type"`
	V         int         `json:"v"`
	ID        string      `json:"id,omitempty"`
	SessionID string      `json:"session_id"`
	Mode      string      `json:"mode"`
	Planned   int         `json:"planned"`
	Processed int         `json:"processed"`
	Mined     int         `json:"mined"`
	Placed    int         `json:"placed"`
	Deposited int         `json:"deposited"`
	Cleaned   int         `json:"cleaned"`
	Remaining int         `json:"remaining"`
	Stopped   bool        `json:"stopped"`
	Abandoned []geom.Cell `json:"abandoned,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func NewAck(ackFor, id, msg string) AckMsg {
	return AckMsg{Type: TypeAck, V: Version, AckFor: ackFor, ID: id, Message: msg}
}

func NewError(code, id, msg string) ErrorMsg {
	if !IsKnownCode(code) {
		code = ErrInternal
	}
	return ErrorMsg{Type: TypeError, V: Version, Code: code, ID: id, Message: msg}
}

// Package protocol defines the JSON messages exchanged over the control bridge.
package protocol

import "encoding/json"

const Version = 1

// Message types.
const (
	TypeHello   = "hello"
	TypeCommand = "command"
	TypeState   = "state"
	TypeAck     = "ack"
	TypeError   = "error"
	TypeStatus  = "status"
	TypeReport  = "report"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
	V    int    `json:"v,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// Package ipc carries UI updates to the desktop widget and user actions back,
// over a local websocket. One hub fans frames out to every connected widget;
// inbound actions funnel into a single channel the orchestrator drains.
package ipc

import "encoding/json"

// Frame types on the wire.
const (
	TypeUIUpdate   = "ui_update"
	TypeUserAction = "user_action"
	TypePing       = "ping"
	TypePong       = "pong"
)

// Frame is the envelope for every message in either direction.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserAction is the payload of a user_action frame.
type UserAction struct {
	Action   string `json:"action"`
	IntentID string `json:"intent_id,omitempty"`
}

// NewFrame marshals data into an envelope. Marshal failures surface to the
// caller; nothing in this package sends a half-built frame.
func NewFrame(frameType string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Data: raw}, nil
}

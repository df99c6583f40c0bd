package websocket

import (
	"encoding/json"
	"time"
)

// Event types emitted over the progress stream.
const (
	TypeSyncStarted   = "sync_started"
	TypeSyncCompleted = "sync_completed"
	TypeSyncFailed    = "sync_failed"
	TypePing          = "ping"
	TypePong          = "pong"
)

type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

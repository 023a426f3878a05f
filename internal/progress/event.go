package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// Type names the kind of event.
type Type string

// Supported event types.
const (
	TypeProgress  Type = "progress"
	TypeResult    Type = "result"
	TypeCancelled Type = "cancelled"
)

// StateCapturing is the only progress state emitted today.
const StateCapturing = "capturing"

// Event is one message on the stream. Payload is a *ProgressPayload,
// *capture.Result, or *CancelledPayload depending on Type.
type Event struct {
	Type      Type      `json:"type"`
	Sequence  uint64    `json:"sequence"`
	RequestID string    `json:"request_id"`
	TS        time.Time `json:"ts"`
	Payload   any       `json:"payload"`
}

// ProgressPayload announces that a worker started on a URL.
type ProgressPayload struct {
	URL   string `json:"url"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	State string `json:"state"`
}

// CancelledPayload closes a cancelled request's stream.
type CancelledPayload struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RequestID == "" {
		return errors.New("request id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeProgress:
		if _, ok := e.Payload.(*ProgressPayload); !ok {
			return errors.New("progress event requires progress payload")
		}
	case TypeResult:
		if _, ok := e.Payload.(*capture.Result); !ok {
			return errors.New("result event requires result payload")
		}
	case TypeCancelled:
		if _, ok := e.Payload.(*CancelledPayload); !ok {
			return errors.New("cancelled event requires cancelled payload")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

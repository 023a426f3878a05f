package progress

import (
	"sync"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// RequestStream stamps one request's events with a monotonically increasing
// sequence number. Emission is serialized so sequence order equals delivery
// order for every subscriber.
type RequestStream struct {
	emitter   Emitter
	clock     capture.Clock
	requestID string

	mu  sync.Mutex
	seq uint64
}

// NewRequestStream binds a stream to requestID. A nil emitter discards events.
func NewRequestStream(emitter Emitter, clock capture.Clock, requestID string) *RequestStream {
	return &RequestStream{emitter: emitter, clock: clock, requestID: requestID}
}

// Progress announces that a worker started on url.
func (s *RequestStream) Progress(url string, index, total int) {
	s.emit(TypeProgress, &ProgressPayload{URL: url, Index: index, Total: total, State: StateCapturing})
}

// Result publishes a copy of r.
func (s *RequestStream) Result(r capture.Result) {
	cp := r.Clone()
	s.emit(TypeResult, &cp)
}

// Cancelled publishes the terminal event of a cancelled request.
func (s *RequestStream) Cancelled(completed, total int) {
	s.emit(TypeCancelled, &CancelledPayload{
		Completed: completed,
		Total:     total,
		Message:   "capture cancelled",
	})
}

func (s *RequestStream) emit(typ Type, payload any) {
	if s == nil || s.emitter == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.emitter.Emit(Event{
		Type:      typ,
		Sequence:  s.seq,
		RequestID: s.requestID,
		TS:        s.clock.Now(),
		Payload:   payload,
	})
}

package progress

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrHubClosed is returned when subscribing to a closed Hub.
var ErrHubClosed = errors.New("progress hub closed")

// Subscription is one consumer of the stream. Events arrive in emit order;
// the channel is closed when the subscriber is pruned, unsubscribes, or the
// hub closes.
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   chan Event
	once sync.Once

	// sink is set on the durable subscriptions that feed sinks.
	sink    Sink
	dropped atomic.Int64
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) offer(evt Event) bool {
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *Subscription) shut() {
	s.once.Do(func() { close(s.ch) })
}

// newSubscription must be called with h.mu held or before the hub is shared.
func (h *Hub) newSubscription(buffer int) *Subscription {
	h.nextSub++
	return &Subscription{
		id:  h.nextSub,
		hub: h,
		ch:  make(chan Event, buffer),
	}
}

// Subscribe registers a new live subscriber.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed.Load() {
		return nil, ErrHubClosed
	}
	sub := h.newSubscription(h.cfg.SubscriberBuffer)
	h.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe removes sub and closes its channel. Sink subscriptions end only
// with the hub.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil || sub.sink != nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.shut()
}

// Subscribers returns the number of live subscribers. Sinks are not counted.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Token is a per-request cancellation cell. Once set it stays set.
type Token struct {
	id        string
	created   time.Time
	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once
}

// NewToken returns an unset token. Tokens are normally minted by Registry.Create.
func NewToken(id string, created time.Time) *Token {
	return &Token{id: id, created: created, done: make(chan struct{})}
}

// ID returns the request id the token guards.
func (t *Token) ID() string { return t.id }

// Created returns the time the token was registered.
func (t *Token) Created() time.Time { return t.created }

// Cancel sets the token. It reports whether this call changed the state.
func (t *Token) Cancel() bool {
	changed := false
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
		changed = true
	})
	return changed
}

// Cancelled reports whether the token is set.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed when the token is set.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

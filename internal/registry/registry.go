// Package registry tracks in-flight capture requests so they can be cancelled
// by id. Entries are bounded by count and by age.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/metrics"
)

const (
	defaultCapacity      = 1000
	defaultTTL           = time.Hour
	maxTTL               = time.Hour
	defaultSweepInterval = time.Minute
)

// ErrDuplicateID is returned when a request id is already registered.
var ErrDuplicateID = errors.New("request id already registered")

// Config tunes the registry.
type Config struct {
	Capacity      int
	TTL           time.Duration
	SweepInterval time.Duration
	Clock         capture.Clock
	Logger        *zap.Logger
}

// Registry maps request ids to cancellation tokens. It is safe for concurrent use.
type Registry struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]*Token

	startOnce sync.Once
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

// New builds a Registry. Call Start to run the background evictor.
func New(cfg Config) *Registry {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	// No token outlives an hour, whatever the caller asks for.
	cfg.TTL = min(cfg.TTL, maxTTL)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger.Named("registry"),
		entries: make(map[string]*Token),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Create registers a fresh token, evicting the oldest entry when full.
func (r *Registry) Create(id string) (*Token, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: request id is required", capture.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if len(r.entries) >= r.cfg.Capacity {
		r.evictOldestLocked()
	}
	tok := NewToken(id, r.cfg.Clock.Now())
	r.entries[id] = tok
	metrics.SetRegistryEntries(len(r.entries))
	return tok, nil
}

// Get returns the token for id.
func (r *Registry) Get(id string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.entries[id]
	return tok, ok
}

// Cancel sets the token for id. It reports whether id was registered.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	tok, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	tok.Cancel()
	r.logger.Info("request cancelled", zap.String("request_id", id))
	return true
}

// CancelAll sets every registered token under one lock and returns how many
// were registered.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.entries {
		tok.Cancel()
	}
	if n := len(r.entries); n > 0 {
		r.logger.Info("all requests cancelled", zap.Int("count", n))
	}
	return len(r.entries)
}

// Remove deletes the entry for id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	metrics.SetRegistryEntries(len(r.entries))
}

// Len returns the number of registered tokens.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evict removes entries older than the TTL and returns how many were dropped.
func (r *Registry) Evict() int {
	cutoff := r.cfg.Clock.Now().Add(-r.cfg.TTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, tok := range r.entries {
		if tok.Created().Before(cutoff) {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.SetRegistryEntries(len(r.entries))
		r.logger.Debug("expired registry entries evicted", zap.Int("count", evicted))
	}
	return evicted
}

func (r *Registry) evictOldestLocked() {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, tok := range r.entries {
		if oldestID == "" || tok.Created().Before(oldest) {
			oldestID, oldest = id, tok.Created()
		}
	}
	if oldestID != "" {
		delete(r.entries, oldestID)
		r.logger.Debug("registry full, evicted oldest entry", zap.String("request_id", oldestID))
	}
}

// Start launches the background evictor. Subsequent calls are no-ops.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

func (r *Registry) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Evict()
		case <-r.stopCh:
			return
		}
	}
}

// Close stops the evictor and waits for it to exit. It is safe to call
// multiple times and when Start was never called.
func (r *Registry) Close(ctx context.Context) error {
	// A registry that never started has no evictor to wait for.
	r.startOnce.Do(func() { close(r.doneCh) })
	first := false
	r.closeOnce.Do(func() {
		close(r.stopCh)
		first = true
	})
	if !first {
		return nil
	}
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("registry close wait: %w", ctx.Err())
	}
}

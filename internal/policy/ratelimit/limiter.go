// Package ratelimit paces navigations per origin with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/screenshot-orchestrator/internal/metrics"
	"github.com/JakeFAU/screenshot-orchestrator/internal/planner"
)

// Limiter manages per-origin token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration. A non-positive RPS disables pacing.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until the origin of rawURL has a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	origin := planner.OriginKey(rawURL, 0)
	l.mu.Lock()
	limiter, ok := l.limiters[origin]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[origin] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not delays.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(metrics.SanitizeSite(rawURL), waited)
	}
	return nil
}

// Origins reports how many origins have a bucket.
func (l *Limiter) Origins() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

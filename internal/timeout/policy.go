// Package timeout derives the per-URL capture deadline from request flags.
package timeout

import (
	"time"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// Override bounds.
const (
	MinOverride = 10 * time.Second
	MaxOverride = 300 * time.Second
)

// Policy holds the per-mode defaults.
type Policy struct {
	Normal      time.Duration
	RealBrowser time.Duration
	AltEngine   time.Duration
	Stealth     time.Duration
	Segmented   time.Duration
}

// Default returns the stock deadlines.
func Default() Policy {
	return Policy{
		Normal:      35 * time.Second,
		RealBrowser: 90 * time.Second,
		AltEngine:   120 * time.Second,
		Stealth:     90 * time.Second,
		Segmented:   120 * time.Second,
	}
}

// Deadline returns the caller override clamped to [MinOverride, MaxOverride]
// when present, otherwise the first matching mode default. It is pure.
func (p Policy) Deadline(flags capture.ModeFlags, overrideSeconds *int) time.Duration {
	if overrideSeconds != nil {
		d := time.Duration(*overrideSeconds) * time.Second
		switch {
		case d < MinOverride:
			return MinOverride
		case d > MaxOverride:
			return MaxOverride
		default:
			return d
		}
	}
	switch {
	case flags.RealBrowser:
		return p.RealBrowser
	case flags.AltEngine:
		return p.AltEngine
	case flags.Stealth:
		return p.Stealth
	case flags.Segmented:
		return p.Segmented
	default:
		return p.Normal
	}
}

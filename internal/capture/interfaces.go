package capture

import (
	"context"
	"io"
	"time"
)

// WaitUntil selects the navigation readiness event.
type WaitUntil string

// Navigation readiness events.
const (
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitLoad             WaitUntil = "load"
)

// SessionOptions configures one browser context.
type SessionOptions struct {
	Viewport     Viewport
	UserAgent    string
	ExtraHeaders map[string]string
	State        StorageState
	InitScripts  []string
	Engine       Engine
	Stealth      bool
	RealBrowser  bool
	TrackNetwork bool
}

// Driver opens isolated browser sessions. Implementations must be safe for
// one session per worker.
type Driver interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a single browser context. Every method honors ctx so that
// cancellation surfaces at each driver boundary.
type Session interface {
	Goto(ctx context.Context, url string, wait WaitUntil) error
	ViewportHeight(ctx context.Context) (int, error)
	DocumentHeight(ctx context.Context) (int, error)
	ScrollTo(ctx context.Context, y int) error
	// Screenshot returns PNG bytes of the viewport, or the whole page when fullPage is set.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	NetworkEvents() []NetworkEvent
	Close() error
}

// QualityChecker scores a stored artifact.
type QualityChecker interface {
	Check(ctx context.Context, path string) (Verdict, error)
}

// ArtifactStore is the only component that touches the screenshots directory.
type ArtifactStore interface {
	// Save writes data under a collision-free variant of name and returns its path.
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// Hasher computes perceptual hashes used to detect repeated segments.
type Hasher interface {
	Hash(png []byte) (uint64, error)
	Similar(a, b uint64) bool
}

// Limiter throttles navigations per origin.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces request IDs.
type IDGenerator interface {
	NewID() (string, error)
}

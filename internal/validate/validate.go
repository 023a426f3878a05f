// Package validate gates capture requests before any browser work starts.
package validate

import (
	"net"
	"net/url"
	"strings"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
)

// Request limits.
const (
	MaxURLs      = 500
	MaxURLLength = 2048

	MinViewportWidth  = 800
	MaxViewportWidth  = 7680
	MinViewportHeight = 600
	MaxViewportHeight = 4320

	MaxOverlapPercent  = 50
	MaxScrollDelayMs   = 10000
	MaxSegments        = 200
	MinBatchTimeout    = 10
	MaxBatchTimeout    = 300
	MinMaxParallelURLs = 1
	MaxMaxParallelURLs = 10
)

var blockedPatterns = []string{
	"file://",
	"javascript:",
	"data:",
	"ftp://",
	"file:",
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
}

// Validator applies the URL and request bound rules.
type Validator struct {
	// AllowPrivateHosts disables the loopback/private host guard.
	AllowPrivateHosts bool
}

// New returns a Validator.
func New(allowPrivateHosts bool) *Validator {
	return &Validator{AllowPrivateHosts: allowPrivateHosts}
}

// URLs validates the list in order and returns it unchanged. The first
// failing rule aborts with capture.ErrInvalidInput.
func (v *Validator) URLs(urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, capture.InvalidInput("url list cannot be empty")
	}
	if len(urls) > MaxURLs {
		return nil, capture.InvalidInput("too many urls (max %d per request)", MaxURLs)
	}
	for _, raw := range urls {
		if err := v.url(raw); err != nil {
			return nil, err
		}
	}
	return urls, nil
}

func (v *Validator) url(raw string) error {
	if schemePrefix(raw) == "" {
		// Blocked patterns only matter outside the http(s):// prefix; past it
		// they are ordinary path or query text.
		if pattern := blockedPattern(strings.ToLower(raw)); pattern != "" {
			return capture.InvalidInput("dangerous url pattern detected: %s", pattern)
		}
		return capture.InvalidInput("invalid url protocol (must be http:// or https://): %s", truncate(raw))
	}
	if len(raw) > MaxURLLength {
		return capture.InvalidInput("url too long (max %d characters): %s", MaxURLLength, truncate(raw))
	}
	if v.AllowPrivateHosts {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return capture.InvalidInput("malformed url: %s", truncate(raw))
	}
	if isPrivateHost(u.Hostname()) {
		return capture.InvalidInput("private or loopback host not allowed: %s", u.Hostname())
	}
	return nil
}

// Request validates the URL list plus viewport and tuning bounds.
func (v *Validator) Request(req capture.Request) error {
	if _, err := v.URLs(req.URLs); err != nil {
		return err
	}
	if w := req.Viewport.Width; w < MinViewportWidth || w > MaxViewportWidth {
		return capture.InvalidInput("viewport width must be %d-%d", MinViewportWidth, MaxViewportWidth)
	}
	if h := req.Viewport.Height; h < MinViewportHeight || h > MaxViewportHeight {
		return capture.InvalidInput("viewport height must be %d-%d", MinViewportHeight, MaxViewportHeight)
	}
	switch req.Mode {
	case capture.ModeViewport, capture.ModeFullPage, capture.ModeSegmented:
	default:
		return capture.InvalidInput("unknown capture mode %q", req.Mode)
	}
	switch req.Engine {
	case capture.EngineDefault, capture.EngineAlt:
	default:
		return capture.InvalidInput("unknown engine %q", req.Engine)
	}
	seg := req.Segment
	if seg.OverlapPercent < 0 || seg.OverlapPercent > MaxOverlapPercent {
		return capture.InvalidInput("segment overlap must be 0-%d", MaxOverlapPercent)
	}
	if seg.ScrollDelayMs < 0 || seg.ScrollDelayMs > MaxScrollDelayMs {
		return capture.InvalidInput("segment scroll delay must be 0-%d", MaxScrollDelayMs)
	}
	if seg.MaxSegments < 1 || seg.MaxSegments > MaxSegments {
		return capture.InvalidInput("segment max segments must be 1-%d", MaxSegments)
	}
	if t := req.BatchTimeoutSeconds; t != nil && (*t < MinBatchTimeout || *t > MaxBatchTimeout) {
		return capture.InvalidInput("batch timeout must be %d-%d seconds", MinBatchTimeout, MaxBatchTimeout)
	}
	if p := req.MaxParallelURLs; p < MinMaxParallelURLs || p > MaxMaxParallelURLs {
		return capture.InvalidInput("max parallel urls must be %d-%d", MinMaxParallelURLs, MaxMaxParallelURLs)
	}
	return nil
}

func schemePrefix(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "https://"
	case strings.HasPrefix(raw, "http://"):
		return "http://"
	default:
		return ""
	}
}

func blockedPattern(lower string) string {
	for _, pattern := range blockedPatterns {
		if strings.Contains(lower, pattern) {
			return pattern
		}
	}
	return ""
}

func isPrivateHost(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

func truncate(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100] + "..."
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := capturesTotal
	Init()
	require.Same(t, first, capturesTotal)
}

func TestObserveCapture(t *testing.T) {
	Init()

	before := testutil.ToFloat64(capturesTotal.WithLabelValues("failed", "timeout"))
	ObserveCapture("segmented", "failed", "timeout", 3*time.Second)
	after := testutil.ToFloat64(capturesTotal.WithLabelValues("failed", "timeout"))
	require.InDelta(t, 1, after-before, 0.0001)
	require.Positive(t, testutil.CollectAndCount(captureDurationSeconds))
}

func TestGauges(t *testing.T) {
	Init()

	base := testutil.ToFloat64(activeCaptures)
	IncActiveCaptures()
	IncActiveCaptures()
	DecActiveCaptures()
	require.InDelta(t, base+1, testutil.ToFloat64(activeCaptures), 0.0001)
	DecActiveCaptures()

	SetRegistryEntries(7)
	require.InDelta(t, 7, testutil.ToFloat64(registryEntries), 0.0001)

	ObserveRateLimitDelay("example.com", 250*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaySeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}

// Package metrics exposes Prometheus collectors for the screenshot service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	capturesTotal              *prometheus.CounterVec
	captureDurationSeconds     *prometheus.HistogramVec
	activeCaptures             prometheus.Gauge
	rateLimitDelaySeconds      *prometheus.HistogramVec
	registryEntries            prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screenshotter_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screenshotter_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "route"},
		)

		capturesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screenshotter_captures_total",
				Help: "Total number of URL captures, labeled by status and error kind.",
			},
			[]string{"status", "error_kind"},
		)

		captureDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screenshotter_capture_duration_seconds",
				Help:    "Histogram of per-URL capture durations, labeled by capture mode.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"mode"},
		)

		activeCaptures = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "screenshotter_active_captures",
				Help: "Number of capture workers currently holding a browser session.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screenshotter_rate_limit_delay_seconds",
				Help:    "Histogram of per-origin politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"origin"},
		)

		registryEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "screenshotter_registry_entries",
				Help: "Number of requests tracked by the cancellation registry.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCapture records the outcome and duration of one URL capture.
func ObserveCapture(mode, status, errorKind string, duration time.Duration) {
	if capturesTotal == nil {
		return
	}
	capturesTotal.WithLabelValues(status, errorKind).Inc()
	captureDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// IncActiveCaptures increments the active captures gauge.
func IncActiveCaptures() {
	if activeCaptures != nil {
		activeCaptures.Inc()
	}
}

// DecActiveCaptures decrements the active captures gauge.
func DecActiveCaptures() {
	if activeCaptures != nil {
		activeCaptures.Dec()
	}
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(origin string, duration time.Duration) {
	if rateLimitDelaySeconds != nil {
		rateLimitDelaySeconds.WithLabelValues(origin).Observe(duration.Seconds())
	}
}

// SetRegistryEntries reports the current registry size.
func SetRegistryEntries(n int) {
	if registryEntries != nil {
		registryEntries.Set(float64(n))
	}
}

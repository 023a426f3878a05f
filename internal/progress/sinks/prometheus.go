package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
)

// PrometheusSink counts stream traffic: events by type, results by status
// and error kind, and segments produced.
type PrometheusSink struct {
	events    *prometheus.CounterVec
	results   *prometheus.CounterVec
	segments  prometheus.Counter
	cancelled prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenshotter_events_total",
			Help: "Events published on the capture stream, partitioned by type.",
		}, []string{"type"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "screenshotter_event_results_total",
			Help: "Result events partitioned by status and error kind.",
		}, []string{"status", "error_kind"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenshotter_segments_total",
			Help: "Segment artifacts reported by successful segmented captures.",
		}),
		cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "screenshotter_requests_cancelled_total",
			Help: "Requests that ended with a cancelled event.",
		}),
	}
	for _, collector := range []prometheus.Collector{s.events, s.results, s.segments, s.cancelled} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors using the provided batch. It is safe for
// concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.events.WithLabelValues(string(evt.Type)).Inc()
		switch p := evt.Payload.(type) {
		case *capture.Result:
			s.results.WithLabelValues(string(p.Status), string(p.ErrorKind)).Inc()
			if p.SegmentCount != nil {
				s.segments.Add(float64(*p.SegmentCount))
			}
		case *progress.CancelledPayload:
			s.cancelled.Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/capture"
	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
)

// LogSink emits structured logs for each event. It is useful during
// development or audits where no subscriber is attached.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("request_id", evt.RequestID),
			zap.String("type", string(evt.Type)),
			zap.Uint64("sequence", evt.Sequence),
		}
		switch p := evt.Payload.(type) {
		case *progress.ProgressPayload:
			fields = append(fields, zap.String("url", p.URL), zap.Int("index", p.Index), zap.Int("total", p.Total))
		case *capture.Result:
			fields = append(fields, zap.String("url", p.URL), zap.String("status", string(p.Status)))
			if p.ErrorKind != "" {
				fields = append(fields, zap.String("error_kind", string(p.ErrorKind)), zap.String("error", p.Error))
			}
		case *progress.CancelledPayload:
			fields = append(fields, zap.Int("completed", p.Completed), zap.Int("total", p.Total))
		}
		s.logger.Info("capture event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

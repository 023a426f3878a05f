package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/screenshot-orchestrator/internal/progress"
)

// Publisher delivers one notification to an external topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the message body sent for result and cancelled events.
type Notification struct {
	Type      progress.Type `json:"type"`
	RequestID string        `json:"request_id"`
	Sequence  uint64        `json:"sequence"`
	TS        time.Time     `json:"ts"`
	Payload   any           `json:"payload"`
}

// Attributes labels the message so subscribers can filter without decoding.
func (n Notification) Attributes() map[string]string {
	return map[string]string{
		"type":       string(n.Type),
		"request_id": n.RequestID,
	}
}

// PublisherSink forwards result and cancelled events to a Publisher. Progress
// events stay local.
type PublisherSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublisherSink builds a sink publishing to topic.
func NewPublisherSink(publisher Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes each terminal event and returns the first failure after
// attempting the whole batch.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var firstErr error
	for _, evt := range batch {
		if evt.Type == progress.TypeProgress {
			continue
		}
		msg := Notification{
			Type:      evt.Type,
			RequestID: evt.RequestID,
			Sequence:  evt.Sequence,
			TS:        evt.TS,
			Payload:   evt.Payload,
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish %s event: %w", evt.Type, err)
			}
			continue
		}
		s.logger.Debug("event published",
			zap.String("message_id", id),
			zap.String("request_id", evt.RequestID),
			zap.String("type", string(evt.Type)),
		)
	}
	return firstErr
}

// Close implements the Sink interface; the publisher is owned by the caller.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}

package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/uridolan77/WebScraping-sub002/internal/progress"
)

// Publisher pushes payloads to a topic and returns the broker message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink forwards content change notifications and run outcomes to a
// message topic. Fetch-level events are ignored.
type PublishSink struct {
	publisher Publisher
	topic     string
	logger    *zap.Logger
}

// NewPublishSink constructs a PublishSink. A nil publisher or empty topic
// turns the sink into a no-op.
func NewPublishSink(publisher Publisher, topic string, logger *zap.Logger) *PublishSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishSink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes CONTENT_CHANGED and terminal run events in batch order.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil || s.topic == "" {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageContentChanged && !evt.Stage.Terminal() {
			continue
		}
		payload := notificationPayload(evt)
		id, err := s.publisher.Publish(ctx, s.topic, payload)
		if err != nil {
			return fmt.Errorf("publish %s: %w", evt.Stage, err)
		}
		s.logger.Debug("notification published",
			zap.String("message_id", id),
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func notificationPayload(evt progress.Event) map[string]any {
	payload := map[string]any{
		"run_id":    evt.RunUUID().String(),
		"stage":     string(evt.Stage),
		"timestamp": evt.TS.UTC().Format(time.RFC3339),
	}
	if evt.Stage == progress.StageContentChanged {
		payload["url"] = evt.URL
		payload["change_type"] = evt.ChangeType
		payload["significance"] = evt.Significance
		payload["content_hash"] = evt.ContentHash
		return payload
	}
	if evt.Totals != nil {
		payload["totals"] = *evt.Totals
	}
	if evt.Note != "" {
		payload["error"] = evt.Note
	}
	return payload
}

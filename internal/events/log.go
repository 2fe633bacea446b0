package events

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes events to the structured log. It is the default when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info("event-published",
		zap.String("event-id", evt.ID),
		zap.String("event-type", evt.Type),
		zap.String("event-key", evt.Key),
		zap.Time("occurred-at", evt.OccurredAt),
		zap.Any("payload", evt.Payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }

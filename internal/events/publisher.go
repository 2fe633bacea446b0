package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mode selects the downstream publisher.
type Mode string

const (
	ModeLog   Mode = "log"
	ModeNATS  Mode = "nats"
	ModeKafka Mode = "kafka"
)

// PublisherConfig holds broker settings for NewPublisher.
type PublisherConfig struct {
	Mode         Mode
	NATSURL      string
	KafkaBrokers string
	KafkaTopic   string
	Logger       *zap.Logger
}

// NewPublisher builds the publisher for cfg.Mode.
func NewPublisher(ctx context.Context, cfg *PublisherConfig) (Publisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	switch cfg.Mode {
	case ModeLog, "":
		return NewLogPublisher(cfg.Logger), nil
	case ModeNATS:
		return NewNATSPublisher(ctx, cfg.NATSURL, cfg.Logger)
	case ModeKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown events mode %q", cfg.Mode)
	}
}

package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	natsStreamName    = "ARENA_SETTLE_EVENTS"
	natsSubjectPrefix = "arena.settle.events"
)

// NATSPublisher publishes events to a JetStream stream on arena.settle.events.<type>.
type NATSPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

// NewNATSPublisher connects and ensures the events stream exists.
func NewNATSPublisher(ctx context.Context, url string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("arena-settle"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      natsStreamName,
		Subjects:  []string{natsSubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create events stream: %w", err)
	}

	logger.Info("nats-publisher-ready",
		zap.String("url", url),
		zap.String("stream", natsStreamName))

	return &NATSPublisher{nc: nc, js: js, logger: logger}, nil
}

// natsSubject maps "market.settled" to "arena.settle.events.market_settled".
func natsSubject(eventType string) string {
	return natsSubjectPrefix + "." + strings.ReplaceAll(eventType, ".", "_")
}

func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.js.Publish(ctx, natsSubject(evt.Type), data, jetstream.WithMsgID(evt.ID))
	if err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

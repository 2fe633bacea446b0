package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue is a bounded in-process buffer drained by a single publishing worker.
// A full queue drops the event; publishing failures are retried then dropped.
type Queue struct {
	publisher    Publisher
	maxAttempts  int
	retryBackoff time.Duration
	logger       *zap.Logger

	mu     sync.RWMutex
	ch     chan Event
	closed bool

	startOnce sync.Once
	done      chan struct{}
}

// QueueConfig holds queue configuration.
type QueueConfig struct {
	Publisher    Publisher
	Capacity     int
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       *zap.Logger
}

// NewQueue creates a queue. Call Start to begin publishing.
func NewQueue(cfg *QueueConfig) (*Queue, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	return &Queue{
		publisher:    cfg.Publisher,
		maxAttempts:  attempts,
		retryBackoff: backoff,
		logger:       cfg.Logger,
		ch:           make(chan Event, capacity),
		done:         make(chan struct{}),
	}, nil
}

// Enqueue never blocks.
func (q *Queue) Enqueue(evt Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		EventsDroppedTotal.WithLabelValues(evt.Type, "closed").Inc()
		return false
	}

	select {
	case q.ch <- evt:
		QueueDepth.Set(float64(len(q.ch)))
		return true
	default:
		EventsDroppedTotal.WithLabelValues(evt.Type, "full").Inc()
		q.logger.Warn("event-queue-full",
			zap.String("event-type", evt.Type),
			zap.String("event-key", evt.Key))
		return false
	}
}

// Start launches the worker. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.run(ctx)
	})
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)

	for evt := range q.ch {
		QueueDepth.Set(float64(len(q.ch)))
		q.publish(ctx, evt)
	}
}

func (q *Queue) publish(ctx context.Context, evt Event) {
	var err error
retry:
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		err = q.publisher.Publish(ctx, evt)
		if err == nil {
			EventsPublishedTotal.WithLabelValues(evt.Type).Inc()
			return
		}

		q.logger.Debug("event-publish-retry",
			zap.String("event-type", evt.Type),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == q.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(q.retryBackoff * time.Duration(attempt)):
		}
	}

	EventsDroppedTotal.WithLabelValues(evt.Type, "publish-failed").Inc()
	q.logger.Error("event-publish-failed",
		zap.String("event-id", evt.ID),
		zap.String("event-type", evt.Type),
		zap.String("event-key", evt.Key),
		zap.Error(err))
}

// Close stops accepting events and waits for the worker to drain what is buffered.
// If Start was never called, buffered events are discarded.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	// Never started: nothing will drain the buffer.
	q.startOnce.Do(func() {
		close(q.done)
	})

	select {
	case <-q.done:
	case <-ctx.Done():
		return fmt.Errorf("drain event queue: %w", ctx.Err())
	}

	return q.publisher.Close()
}

// Package events publishes settlement side effects after the primary mutation has committed.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeMarketSettled   = "market.settled"
	TypeMarketCancelled = "market.cancelled"
	TypeBetSettled      = "bet.settled"
	TypeWalletCredited  = "wallet.credited"
	TypeWalletDebited   = "wallet.debited"
)

// Event is a fact about a committed mutation. Key groups related events
// (market key or wallet id) and is used as the broker partition key.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time.
func New(eventType, key string, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers one event to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// Sink accepts events without blocking the caller. Enqueue reports false when the event was dropped.
type Sink interface {
	Enqueue(evt Event) bool
}

// Discard is a Sink that drops everything.
type Discard struct{}

func (Discard) Enqueue(Event) bool { return true }

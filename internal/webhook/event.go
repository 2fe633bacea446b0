package webhook

import (
	"fmt"

	"github.com/goccy/go-json"
)

// EventCheckoutCompleted is the only event type that moves money.
const EventCheckoutCompleted = "checkout.session.completed"

type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object checkoutSession `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID          string            `json:"id"`
	AmountTotal *int64            `json:"amount_total"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

// Deposit is a well-formed checkout completion.
type Deposit struct {
	EventID        string
	SessionID      string
	UserID         string
	IdempotencyKey string
	AmountCents    int64
}

func parseEvent(payload []byte) (*gatewayEvent, error) {
	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &evt, nil
}

// deposit extracts the credit from a checkout event. The returned reason is
// non-empty when the event must be dropped.
func (e *gatewayEvent) deposit() (*Deposit, string) {
	s := e.Data.Object
	d := &Deposit{
		EventID:        e.ID,
		SessionID:      s.ID,
		UserID:         s.Metadata["userId"],
		IdempotencyKey: s.Metadata["idempotencyKey"],
	}

	switch {
	case d.UserID == "":
		return nil, "missing userId"
	case d.IdempotencyKey == "":
		return nil, "missing idempotencyKey"
	case s.AmountTotal == nil:
		return nil, "missing amount_total"
	case *s.AmountTotal <= 0:
		return nil, "non-positive amount_total"
	}
	d.AmountCents = *s.AmountTotal
	return d, ""
}

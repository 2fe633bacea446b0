package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts webhook deliveries by outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_webhook_events_total",
		Help: "Total number of payment webhook deliveries by outcome",
	}, []string{"outcome"})

	// CreditedCentsTotal sums deposits credited through the webhook.
	CreditedCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_settle_webhook_credited_cents_total",
		Help: "Total cents credited from payment webhook deposits",
	})
)

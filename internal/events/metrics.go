package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of buffered events waiting to be published.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_settle_events_queue_depth",
		Help: "Number of events buffered for publishing",
	})

	// EventsPublishedTotal counts delivered events by type.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_events_published_total",
		Help: "Total number of events published by type",
	}, []string{"type"})

	// EventsDroppedTotal counts events that were never delivered.
	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_events_dropped_total",
		Help: "Total number of events dropped by type and reason",
	}, []string{"type", "reason"})
)

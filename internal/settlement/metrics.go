package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementsTotal counts settle calls by source and result.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_settlements_total",
		Help: "Total number of market settlement attempts by source and result",
	}, []string{"source", "result"})

	// CancellationsTotal counts cancel calls by source and result.
	CancellationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_market_cancellations_total",
		Help: "Total number of market cancellation attempts by source and result",
	}, []string{"source", "result"})

	// BetSettlementsTotal counts individual bet payouts.
	BetSettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_bet_settlements_total",
		Help: "Total number of bet settlements by result",
	}, []string{"result"})

	// SettlementDuration tracks how long a market settlement takes end to end.
	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_settle_settlement_duration_seconds",
		Help:    "Duration of market settlement",
		Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

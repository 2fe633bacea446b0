package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TickDurationSeconds tracks the duration of one poller tick.
	TickDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_settle_poller_tick_duration_seconds",
		Help:    "Duration of a resolution poller tick",
		Buckets: []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// TicksTotal counts ticks by result (ran, skipped-locked).
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_poller_ticks_total",
		Help: "Total number of poller ticks by result",
	}, []string{"result"})

	// MarketChecksTotal counts per-market venue checks by source and outcome.
	MarketChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_poller_market_checks_total",
		Help: "Total number of market resolution checks by source and outcome",
	}, []string{"source", "outcome"})

	// OpenMarkets is the number of market groups with unresolved bets seen by the last tick.
	OpenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_settle_poller_open_markets",
		Help: "Number of markets with unresolved bets at the last tick",
	})

	// StaleMarketsTotal counts stale competition markets handled by action.
	StaleMarketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_poller_stale_markets_total",
		Help: "Total number of stale competition markets by action",
	}, []string{"action"})
)

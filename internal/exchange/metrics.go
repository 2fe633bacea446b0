package exchange

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchDuration tracks venue market-state fetch latency, including breaker rejections.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_settle_exchange_fetch_duration_seconds",
		Help:    "Duration of market state fetches per venue",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// FetchErrorsTotal counts failed fetches per venue.
	FetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_exchange_fetch_errors_total",
		Help: "Total number of failed market state fetches per venue",
	}, []string{"source"})

	// StateCacheHitsTotal counts resolved states served from cache.
	StateCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_exchange_state_cache_hits_total",
		Help: "Total number of resolved market states served from cache",
	}, []string{"source"})
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_cache_hits_total",
		Help: "Total number of cache hits by cache name",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_cache_misses_total",
		Help: "Total number of cache misses by cache name",
	}, []string{"cache"})

	CacheSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_cache_sets_total",
		Help: "Total number of admitted cache sets by cache name",
	}, []string{"cache"})

	CacheDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_cache_deletes_total",
		Help: "Total number of cache deletes by cache name",
	}, []string{"cache"})
)

package cache

import (
	"testing"
)

func TestMetrics_Registration(t *testing.T) {
	if CacheHitsTotal == nil {
		t.Error("CacheHitsTotal not registered")
	}
	if CacheMissesTotal == nil {
		t.Error("CacheMissesTotal not registered")
	}
	if CacheSetsTotal == nil {
		t.Error("CacheSetsTotal not registered")
	}
	if CacheDeletesTotal == nil {
		t.Error("CacheDeletesTotal not registered")
	}

	CacheHitsTotal.WithLabelValues("metrics-test").Inc()
	CacheMissesTotal.WithLabelValues("metrics-test").Inc()
	CacheSetsTotal.WithLabelValues("metrics-test").Inc()
	CacheDeletesTotal.WithLabelValues("metrics-test").Inc()
}

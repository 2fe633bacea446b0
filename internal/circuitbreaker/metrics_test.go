package circuitbreaker

import (
	"testing"
)

func TestMetricsRegistration(t *testing.T) {
	t.Parallel()

	if BreakerState == nil {
		t.Error("BreakerState metric is nil")
	}
	if BreakerStateChanges == nil {
		t.Error("BreakerStateChanges metric is nil")
	}
	if BreakerCallsTotal == nil {
		t.Error("BreakerCallsTotal metric is nil")
	}

	BreakerState.WithLabelValues("metrics-test").Set(float64(StateHalfOpen))
	BreakerStateChanges.WithLabelValues("metrics-test", StateOpen.String()).Inc()
	BreakerCallsTotal.WithLabelValues("metrics-test", "rejected").Inc()
}

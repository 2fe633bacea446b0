package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks the current state per service (0=closed, 1=open, 2=half-open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arena_settle_circuit_breaker_state",
		Help: "Current circuit breaker state per service (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	// BreakerStateChanges counts transitions into each state.
	BreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_circuit_breaker_state_changes_total",
		Help: "Total number of circuit breaker transitions by target state",
	}, []string{"service", "state"})

	// BreakerCallsTotal counts calls by result (success, failure, timeout, rejected).
	BreakerCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_settle_circuit_breaker_calls_total",
		Help: "Total number of calls through the circuit breaker by result",
	}, []string{"service", "result"})
)

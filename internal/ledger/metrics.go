package ledger

import (
	"errors"

	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OperationsTotal counts ledger operations by op and result.
var OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "arena_settle_ledger_operations_total",
	Help: "Total number of ledger operations by operation and result",
}, []string{"op", "result"})

func observe(op string, err error) {
	OperationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrDuplicateIdempotencyKey):
		return "duplicate"
	case errors.Is(err, types.ErrInsufficientFunds), errors.Is(err, types.ErrInsufficientAvailableFunds):
		return "insufficient-funds"
	case errors.Is(err, types.ErrInvalidAmount):
		return "invalid"
	default:
		return "error"
	}
}

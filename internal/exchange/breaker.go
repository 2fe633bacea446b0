package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/arena-settle/internal/circuitbreaker"
	"github.com/mselser95/arena-settle/pkg/types"
)

// BreakerClient routes every venue call through that venue's circuit breaker.
type BreakerClient struct {
	client  Client
	breaker *circuitbreaker.Breaker
}

// NewBreakerClient wraps client with breaker.
func NewBreakerClient(client Client, breaker *circuitbreaker.Breaker) (*BreakerClient, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if breaker == nil {
		return nil, fmt.Errorf("breaker cannot be nil")
	}
	return &BreakerClient{client: client, breaker: breaker}, nil
}

func (c *BreakerClient) Source() types.Source {
	return c.client.Source()
}

// IsVenueFailure is the breaker failure predicate for venue clients. A resolved
// market whose outcome cannot be read is a per-market problem, not an outage.
func IsVenueFailure(err error) bool {
	return !errors.Is(err, types.ErrUnparseableResolution)
}

// FetchMarketState returns circuitbreaker.ErrCircuitOpen while the venue's circuit is open.
func (c *BreakerClient) FetchMarketState(ctx context.Context, marketID string) (*MarketState, error) {
	source := string(c.client.Source())
	start := time.Now()

	state, err := circuitbreaker.Execute(ctx, c.breaker, func(callCtx context.Context) (*MarketState, error) {
		return c.client.FetchMarketState(callCtx, marketID)
	})

	FetchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		FetchErrorsTotal.WithLabelValues(source).Inc()
		return nil, err
	}
	return state, nil
}

package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/internal/circuitbreaker"
	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubClient struct {
	source types.Source
	calls  atomic.Int32
	state  *MarketState
	err    error
}

func (s *stubClient) Source() types.Source { return s.source }

func (s *stubClient) FetchMarketState(_ context.Context, marketID string) (*MarketState, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	state := *s.state
	state.MarketID = marketID
	return &state, nil
}

func TestBreakerClient_OpensPerVenue(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	reg := circuitbreaker.NewRegistry()

	polyBreaker, err := reg.Register(&circuitbreaker.Config{
		Name: "exchange-test-polymarket", FailureThreshold: 2, Cooldown: time.Minute, Timeout: time.Second, Logger: logger,
	})
	require.NoError(t, err)
	kalshiBreaker, err := reg.Register(&circuitbreaker.Config{
		Name: "exchange-test-kalshi", FailureThreshold: 2, Cooldown: time.Minute, Timeout: time.Second, Logger: logger,
	})
	require.NoError(t, err)

	failingPoly := &stubClient{source: types.SourcePolymarket, err: errors.New("503")}
	healthyKalshi := &stubClient{
		source: types.SourceKalshi,
		state:  &MarketState{Source: types.SourceKalshi, Status: StatusOpen},
	}

	poly, err := NewBreakerClient(failingPoly, polyBreaker)
	require.NoError(t, err)
	kalshi, err := NewBreakerClient(healthyKalshi, kalshiBreaker)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err = poly.FetchMarketState(ctx, "m1")
		require.Error(t, err)
	}

	_, err = poly.FetchMarketState(ctx, "m1")
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), failingPoly.calls.Load())

	state, err := kalshi.FetchMarketState(ctx, "KX-1")
	require.NoError(t, err)
	assert.Equal(t, "KX-1", state.MarketID)
	assert.Equal(t, circuitbreaker.StateClosed, kalshiBreaker.State())
}

// switchClient answers with an unparseable resolution for bad market ids.
type switchClient struct {
	calls atomic.Int32
}

func (s *switchClient) Source() types.Source { return types.SourcePolymarket }

func (s *switchClient) FetchMarketState(_ context.Context, marketID string) (*MarketState, error) {
	s.calls.Add(1)
	if marketID != "good" {
		return nil, &types.UnparseableResolutionError{Source: types.SourcePolymarket, MarketID: marketID, Reason: "no winning price"}
	}
	return &MarketState{Source: types.SourcePolymarket, MarketID: marketID, Status: StatusSettled, Resolved: true, WinningOutcome: "Yes"}, nil
}

func TestBreakerClient_UnparseableDoesNotOpenCircuit(t *testing.T) {
	t.Parallel()

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		Name:             "exchange-test-unparseable",
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		Timeout:          time.Second,
		Logger:           zaptest.NewLogger(t),
		IsFailure:        IsVenueFailure,
	})
	require.NoError(t, err)

	inner := &switchClient{}
	client, err := NewBreakerClient(inner, breaker)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"bad1", "bad2", "bad3", "bad4"} {
		_, err := client.FetchMarketState(ctx, id)
		require.ErrorIs(t, err, types.ErrUnparseableResolution)
		require.NotErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	}
	assert.Equal(t, circuitbreaker.StateClosed, breaker.State())
	assert.Equal(t, 0, breaker.Status().FailureCount)

	state, err := client.FetchMarketState(ctx, "good")
	require.NoError(t, err)
	assert.True(t, state.Resolved)
	assert.Equal(t, "Yes", state.WinningOutcome)
	assert.Equal(t, int32(5), inner.calls.Load())
}

func TestIsVenueFailure(t *testing.T) {
	t.Parallel()

	assert.True(t, IsVenueFailure(errors.New("unexpected status code 503")))
	assert.False(t, IsVenueFailure(&types.UnparseableResolutionError{Source: types.SourceKalshi, MarketID: "KX"}))
	assert.False(t, IsVenueFailure(fmt.Errorf("fetch: %w", types.ErrUnparseableResolution)))
}

func TestNewBreakerClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewBreakerClient(nil, nil)
	require.EqualError(t, err, "client cannot be nil")

	_, err = NewBreakerClient(&stubClient{}, nil)
	require.EqualError(t, err, "breaker cannot be nil")
}

func TestCachedClient(t *testing.T) {
	t.Parallel()

	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name: "venue-state-test", NumCounters: 1000, MaxCost: 100, BufferItems: 64, Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	defer c.Close()
	rc := c.(*cache.RistrettoCache)

	t.Run("resolved-state-cached", func(t *testing.T) {
		inner := &stubClient{
			source: types.SourcePolymarket,
			state:  &MarketState{Source: types.SourcePolymarket, Status: StatusSettled, Resolved: true, WinningOutcome: "YES"},
		}
		client := NewCachedClient(inner, c, time.Hour)

		first, err := client.FetchMarketState(context.Background(), "resolved-1")
		require.NoError(t, err)
		rc.Wait()

		second, err := client.FetchMarketState(context.Background(), "resolved-1")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("unresolved-state-not-cached", func(t *testing.T) {
		inner := &stubClient{
			source: types.SourceKalshi,
			state:  &MarketState{Source: types.SourceKalshi, Status: StatusOpen},
		}
		client := NewCachedClient(inner, c, time.Hour)

		for i := 0; i < 3; i++ {
			_, err := client.FetchMarketState(context.Background(), "open-1")
			require.NoError(t, err)
			rc.Wait()
		}
		assert.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("nil-cache-passthrough", func(t *testing.T) {
		inner := &stubClient{
			source: types.SourceKalshi,
			state:  &MarketState{Source: types.SourceKalshi, Status: StatusSettled, Resolved: true, WinningOutcome: "NO"},
		}
		client := NewCachedClient(inner, nil, 0)

		_, err := client.FetchMarketState(context.Background(), "x")
		require.NoError(t, err)
		_, err = client.FetchMarketState(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, int32(2), inner.calls.Load())
		assert.Equal(t, DefaultResolvedTTL, client.ttl)
	})
}

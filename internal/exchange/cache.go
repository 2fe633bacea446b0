package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/types"
)

// DefaultResolvedTTL is how long a resolved venue answer is reused.
const DefaultResolvedTTL = time.Hour

// CachedClient remembers resolved market states so retried settlements don't re-query the venue.
// Unresolved states are never cached.
type CachedClient struct {
	client Client
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedClient wraps client. A nil cache disables caching.
func NewCachedClient(client Client, c cache.Cache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = DefaultResolvedTTL
	}
	return &CachedClient{
		client: client,
		cache:  c,
		ttl:    ttl,
	}
}

func (c *CachedClient) Source() types.Source {
	return c.client.Source()
}

func (c *CachedClient) FetchMarketState(ctx context.Context, marketID string) (*MarketState, error) {
	key := fmt.Sprintf("venue-state:%s:%s", c.client.Source(), marketID)

	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			if state, ok := cached.(*MarketState); ok {
				StateCacheHitsTotal.WithLabelValues(string(c.client.Source())).Inc()
				copied := *state
				return &copied, nil
			}
		}
	}

	state, err := c.client.FetchMarketState(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && state.Resolved {
		copied := *state
		c.cache.Set(key, &copied, c.ttl)
	}

	return state, nil
}

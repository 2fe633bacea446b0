package circuitbreaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	clock := newFakeClock()
	reg := NewRegistry()

	poly, err := reg.Register(&Config{
		Name: "registry-polymarket", FailureThreshold: 1, Cooldown: time.Minute, Timeout: time.Second,
		Clock: clock, Logger: logger,
	})
	require.NoError(t, err)
	_, err = reg.Register(&Config{
		Name: "registry-kalshi", FailureThreshold: 3, Cooldown: 30 * time.Second, Timeout: time.Second,
		Clock: clock, Logger: logger,
	})
	require.NoError(t, err)

	_, err = reg.Register(&Config{
		Name: "registry-kalshi", FailureThreshold: 3, Cooldown: time.Second, Timeout: time.Second, Logger: logger,
	})
	require.Error(t, err)

	_, err = reg.Register(nil)
	require.Error(t, err)

	// Tripping one breaker leaves the other untouched.
	require.Error(t, poly.Do(context.Background(), func(context.Context) error { return errUpstream }))

	kalshi, ok := reg.Get("registry-kalshi")
	require.True(t, ok)
	assert.Equal(t, StateClosed, kalshi.State())

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	statuses := reg.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "registry-kalshi", statuses[0].Name)
	assert.Equal(t, "CLOSED", statuses[0].State)
	assert.Equal(t, "registry-polymarket", statuses[1].Name)
	assert.Equal(t, "OPEN", statuses[1].State)
	assert.Equal(t, 1, statuses[1].FailureCount)
}

//go:build integration

package poller

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisTickLock_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	first, err := NewRedisTickLock(client, "arena-settle:poller:tick", 5*time.Second)
	require.NoError(t, err)
	second, err := NewRedisTickLock(client, "arena-settle:poller:tick", 5*time.Second)
	require.NoError(t, err)

	release, acquired, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquired, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second instance must not own the tick")

	release()

	release2, acquired, err := second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Releasing a lease that has since been taken over must not delete the new owner's key.
	require.NoError(t, client.Set(ctx, "arena-settle:poller:tick", "someone-else", time.Minute).Err())
	release2()
	val, err := client.Get(ctx, "arena-settle:poller:tick").Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"
)

// TestDatabase is a migrated Postgres container and a store connected to it.
type TestDatabase struct {
	Container *postgres.PostgresContainer
	Store     *storage.PostgresStore
	DSN       string
}

// SetupTestDatabase starts postgres:16-alpine, applies migrations and connects a store.
// The container is terminated when the test finishes.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("arena_settle_test"),
		postgres.WithUsername("test_user"),
		postgres.WithPassword("test_password"),
		postgres.BasicWaitStrategies(),
		testcontainers.WithLabels(map[string]string{
			"test":      "arena-settle-storage",
			"test-name": t.Name(),
		}),
	)
	require.NoError(t, err)

	td := &TestDatabase{Container: container}
	t.Cleanup(func() { td.cleanup(t) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	td.DSN = dsn

	logger := zaptest.NewLogger(t)

	migrator, err := storage.NewMigrator(dsn, logger)
	require.NoError(t, err)
	require.NoError(t, migrator.Up())
	require.NoError(t, migrator.Close())

	td.Store, err = storage.OpenPostgresStore(ctx, dsn, logger)
	require.NoError(t, err)

	return td
}

func (td *TestDatabase) cleanup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if td.Store != nil {
		_ = td.Store.Close()
	}
	if td.Container != nil {
		err := td.Container.Terminate(ctx)
		if err != nil {
			t.Logf("Warning: failed to terminate test container: %v", err)
		}
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mselser95/arena-settle/internal/circuitbreaker"
	"github.com/mselser95/arena-settle/internal/events"
	"github.com/mselser95/arena-settle/internal/exchange"
	"github.com/mselser95/arena-settle/internal/exchange/kalshi"
	"github.com/mselser95/arena-settle/internal/exchange/polymarket"
	"github.com/mselser95/arena-settle/internal/ledger"
	"github.com/mselser95/arena-settle/internal/poller"
	"github.com/mselser95/arena-settle/internal/settlement"
	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pollerLockKey = "arena-settle:poller:tick"

// Core is the settlement stack shared by the server and the one-shot commands.
type Core struct {
	Store    storage.Store
	Breakers *circuitbreaker.Registry
	Clients  []exchange.Client
	Events   *events.Queue
	Ledger   *ledger.Ledger
	Engine   *settlement.Engine
	Poller   *poller.Poller

	redis      *redis.Client
	venueCache cache.Cache
	logger     *zap.Logger
}

// BuildCore wires storage, venue clients, the ledger, the settlement engine and the poller.
// The events queue is created but not started.
func BuildCore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Core, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	core := &Core{logger: logger}
	defer func() {
		if err != nil {
			_ = core.Close(context.Background())
		}
	}()

	core.Store, err = setupStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	core.venueCache, err = cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "venue-state",
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setup venue cache: %w", err)
	}

	core.Breakers = circuitbreaker.NewRegistry()
	core.Clients, err = setupVenueClients(cfg, logger, core.Breakers, core.venueCache)
	if err != nil {
		return nil, fmt.Errorf("setup venue clients: %w", err)
	}

	core.Events, err = setupEvents(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup events: %w", err)
	}

	core.Ledger, err = ledger.New(&ledger.Config{
		Store:  core.Store,
		Events: core.Events,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}

	core.Engine, err = settlement.New(&settlement.Config{
		Store:  core.Store,
		Ledger: core.Ledger,
		Events: core.Events,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create settlement engine: %w", err)
	}

	lock, err := core.setupTickLock(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("setup tick lock: %w", err)
	}

	core.Poller, err = poller.New(&poller.Config{
		Store:       core.Store,
		Settler:     core.Engine,
		Clients:     core.Clients,
		Interval:    cfg.PollerInterval,
		StaleGrace:  cfg.PollerStaleGrace,
		Concurrency: cfg.PollerConcurrency,
		Lock:        lock,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	return core, nil
}

func setupStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	mode, err := storage.ParseMode(cfg.StorageMode)
	if err != nil {
		return nil, err
	}

	if mode == storage.ModeMemory {
		logger.Warn("memory-storage-enabled",
			zap.String("note", "balances are lost on restart"))
		return storage.NewMemoryStore(), nil
	}

	pg, err := storage.NewPostgresStore(ctx, postgresConfig(cfg, logger))
	if err != nil {
		return nil, err
	}
	return pg, nil
}

func postgresConfig(cfg *config.Config, logger *zap.Logger) *storage.PostgresConfig {
	return &storage.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPass,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSL,
		Logger:   logger,
	}
}

// PostgresDSN returns the connection string built from cfg.
func PostgresDSN(cfg *config.Config) string {
	return postgresConfig(cfg, nil).DSN()
}

func setupVenueClients(
	cfg *config.Config,
	logger *zap.Logger,
	registry *circuitbreaker.Registry,
	venueCache cache.Cache,
) ([]exchange.Client, error) {
	venues := []struct {
		client  exchange.Client
		breaker config.BreakerConfig
	}{
		{client: polymarket.NewClient(cfg.PolymarketGammaURL, logger), breaker: cfg.PolymarketBreaker},
		{client: kalshi.NewClient(cfg.KalshiAPIURL, logger), breaker: cfg.KalshiBreaker},
	}

	clients := make([]exchange.Client, 0, len(venues))
	for _, v := range venues {
		breaker, err := registry.Register(&circuitbreaker.Config{
			Name:             string(v.client.Source()),
			FailureThreshold: v.breaker.FailureThreshold,
			Cooldown:         v.breaker.Cooldown,
			Timeout:          v.breaker.Timeout,
			Logger:           logger,
			IsFailure:        exchange.IsVenueFailure,
		})
		if err != nil {
			return nil, fmt.Errorf("register %s breaker: %w", v.client.Source(), err)
		}

		guarded, err := exchange.NewBreakerClient(v.client, breaker)
		if err != nil {
			return nil, fmt.Errorf("wrap %s client: %w", v.client.Source(), err)
		}

		clients = append(clients, exchange.NewCachedClient(guarded, venueCache, cfg.VenueCacheTTL))
	}

	return clients, nil
}

func setupEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*events.Queue, error) {
	publisher, err := events.NewPublisher(ctx, &events.PublisherConfig{
		Mode:         events.Mode(cfg.EventsMode),
		NATSURL:      cfg.NATSURL,
		KafkaBrokers: strings.Join(cfg.KafkaBrokers, ","),
		KafkaTopic:   cfg.KafkaTopic,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	queue, err := events.NewQueue(&events.QueueConfig{
		Publisher: publisher,
		Capacity:  cfg.EventsQueueSize,
		Logger:    logger,
	})
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("create queue: %w", err)
	}

	return queue, nil
}

func (c *Core) setupTickLock(ctx context.Context, cfg *config.Config) (poller.TickLock, error) {
	if cfg.RedisAddr == "" {
		c.logger.Info("poller-lock-disabled", zap.String("reason", "REDIS_ADDR not set"))
		return poller.NoopLock{}, nil
	}

	c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	err := c.redis.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	c.logger.Info("poller-lock-enabled",
		zap.String("redis-addr", cfg.RedisAddr),
		zap.Duration("ttl", cfg.PollerLockTTL))

	return poller.NewRedisTickLock(c.redis, pollerLockKey, cfg.PollerLockTTL)
}

// RedisPing reports Redis health, or nil when no lock backend is configured.
func (c *Core) RedisPing(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close stops the poller, drains the events queue and releases connections.
func (c *Core) Close(ctx context.Context) error {
	var errs []error

	if c.Poller != nil {
		c.Poller.Stop()
	}
	if c.Events != nil {
		err := c.Events.Close(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("close events: %w", err))
		}
	}
	if c.redis != nil {
		err := c.redis.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.venueCache != nil {
		c.venueCache.Close()
	}
	if c.Store != nil {
		err := c.Store.Close()
		if err != nil {
			errs = append(errs, fmt.Errorf("close storage: %w", err))
		}
	}

	return errors.Join(errs...)
}

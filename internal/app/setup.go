package app

import (
	"context"
	"fmt"

	"github.com/mselser95/arena-settle/internal/storage"
	"github.com/mselser95/arena-settle/internal/webhook"
	"github.com/mselser95/arena-settle/pkg/cache"
	"github.com/mselser95/arena-settle/pkg/config"
	"github.com/mselser95/arena-settle/pkg/healthprobe"
	"github.com/mselser95/arena-settle/pkg/httpserver"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	if opts.Migrate {
		err := runMigrations(cfg, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	core, err := BuildCore(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build core: %w", err)
	}

	// Setup webhook handler (needs ledger)
	webhookHandler, dedup, err := setupWebhook(cfg, logger, core)
	if err != nil {
		_ = core.Close(context.Background())
		cancel()
		return nil, fmt.Errorf("setup webhook: %w", err)
	}

	healthChecker := setupHealthChecker(core)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, core, webhookHandler)

	return &App{
		cfg:           cfg,
		logger:        logger,
		opts:          opts,
		core:          core,
		healthChecker: healthChecker,
		dedup:         dedup,
		httpServer:    httpServer,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	if cfg.StorageMode != string(storage.ModePostgres) {
		logger.Info("migrations-skipped", zap.String("storage-mode", cfg.StorageMode))
		return nil
	}

	migrator, err := storage.NewMigrator(PostgresDSN(cfg), logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = migrator.Close()
	}()

	return migrator.Up()
}

func setupWebhook(cfg *config.Config, logger *zap.Logger, core *Core) (*webhook.Handler, cache.Cache, error) {
	dedup, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		Name:        "webhook-dedup",
		NumCounters: 100000,
		MaxCost:     10000,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create dedup cache: %w", err)
	}

	handler, err := webhook.New(&webhook.Config{
		Secret:    cfg.PaymentWebhookSecret,
		Tolerance: cfg.PaymentWebhookTolerance,
		Ledger:    core.Ledger,
		Dedup:     dedup,
		Logger:    logger,
	})
	if err != nil {
		dedup.Close()
		return nil, nil, err
	}

	return handler, dedup, nil
}

func setupHealthChecker(core *Core) *healthprobe.HealthChecker {
	hc := healthprobe.New()
	hc.AddCheck("storage", core.Store.Ping)
	hc.AddCheck("redis", core.RedisPing)
	return hc
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	core *Core,
	webhookHandler *webhook.Handler,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Webhook:       webhookHandler,
		Resolver:      core.Engine,
		Wallets:       core.Store,
		Breakers:      core.Breakers,
		AdminToken:    cfg.AdminToken,
	})
}

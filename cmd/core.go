package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/arena-settle/internal/app"
	"github.com/mselser95/arena-settle/pkg/config"
	"go.uber.org/zap"
)

// openCore builds the settlement stack for a one-shot command. The returned
// cleanup drains pending events and closes connections.
func openCore(ctx context.Context) (*app.Core, *zap.Logger, func(), error) {
	cfg := config.Load()
	err := cfg.ValidateStorage()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}

	core, err := app.BuildCore(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("build core: %w", err)
	}
	core.Events.Start(ctx)

	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := core.Close(closeCtx)
		if err != nil {
			logger.Warn("core-close-error", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return core, logger, cleanup, nil
}

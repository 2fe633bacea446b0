package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Components stop in reverse
// dependency order: HTTP intake, then the poller, then the event queue and storage.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting webhooks and admin calls first
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Waits for an in-flight tick, then drains queued events
	coreErr := a.core.Close(shutdownCtx)
	if coreErr != nil {
		a.logger.Error("core-close-error", zap.Error(coreErr))
	}

	a.dedup.Close()

	// Cancel context to release anything still bound to it
	a.cancel()

	// Wait for all goroutines
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	if coreErr != nil {
		return fmt.Errorf("close core: %w", coreErr)
	}
	return nil
}

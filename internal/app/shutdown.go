package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. In-flight commands finish
// before the pending store is closed.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	err = a.engine.Close()
	if err != nil {
		a.logger.Error("reconcile-engine-close-error", zap.Error(err))
	}

	if a.breaker != nil {
		a.breaker.Close()
	}

	a.wg.Wait()

	a.closeResources()

	a.logger.Info("application-shutdown-complete")

	return nil
}

// closeResources releases the store, notifier and cache. Safe on a
// partially constructed App.
func (a *App) closeResources() {
	if a.notifier != nil {
		err := a.notifier.Close()
		if err != nil {
			a.logger.Error("notifier-close-error", zap.Error(err))
		}
	}

	if a.book != nil {
		// Taking the lock waits for any command still holding it.
		a.book.Lock()
		a.book.Unlock()

		err := a.book.Close()
		if err != nil {
			a.logger.Error("pending-store-close-error", zap.Error(err))
		}
	}

	if a.cache != nil {
		a.cache.Close()
	}
}

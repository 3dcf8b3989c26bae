package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("trading-env", a.cfg.TradingEnv),
		zap.String("symbol", a.cfg.Symbol),
		zap.String("storage-mode", a.cfg.StorageMode),
		zap.Int("pending-pairs", a.book.Len()),
		zap.Duration("reconcile-interval", a.cfg.ReconcileInterval),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	// Readiness additionally waits for the first completed pass.
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("exchange-url", a.cfg.BaseURL()))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	err := a.engine.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start reconcile engine: %w", err)
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}

package app

import (
	"context"
	"sync"

	"github.com/mselser95/gridbot/internal/circuitbreaker"
	"github.com/mselser95/gridbot/internal/exchange"
	"github.com/mselser95/gridbot/internal/grid"
	"github.com/mselser95/gridbot/internal/notify"
	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/cache"
	"github.com/mselser95/gridbot/pkg/config"
	"github.com/mselser95/gridbot/pkg/healthprobe"
	"github.com/mselser95/gridbot/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	cache         *cache.RistrettoCache
	exchange      *exchange.Client
	book          *pending.Book
	notifier      notify.Notifier
	breaker       *circuitbreaker.BalanceCircuitBreaker // nil when the guard is disabled
	engine        *reconcile.Engine
	grid          *grid.Service
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// DisableAPI serves only /health, /ready and /metrics.
	DisableAPI bool
}

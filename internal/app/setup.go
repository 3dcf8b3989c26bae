package app

import (
	"context"
	"fmt"
	"time"

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
	"github.com/mselser95/gridbot/pkg/profit"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (_ *App, err error) {
	if opts == nil {
		opts = &Options{}
	}
	err = cfg.RequireCredentials()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New(),
		ctx:           ctx,
		cancel:        cancel,
	}
	defer func() {
		if err != nil {
			a.closeResources()
			cancel()
		}
	}()

	a.cache, err = setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	a.exchange, err = setupExchange(ctx, cfg, logger, a.cache)
	if err != nil {
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	a.book, err = setupBook(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup pending store: %w", err)
	}

	a.notifier, err = setupNotifier(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup notifier: %w", err)
	}

	a.breaker, err = setupBreaker(cfg, logger, a.exchange)
	if err != nil {
		return nil, fmt.Errorf("setup balance guard: %w", err)
	}

	a.engine, err = setupEngine(cfg, logger, a.exchange, a.book, a.notifier)
	if err != nil {
		return nil, fmt.Errorf("setup reconcile engine: %w", err)
	}

	gridCfg := gridConfig(cfg, logger, a.exchange, a.book)
	gridCfg.Statuses = a.engine
	if a.breaker != nil {
		gridCfg.Guard = a.breaker
	}
	a.grid, err = grid.New(gridCfg)
	if err != nil {
		return nil, fmt.Errorf("setup grid service: %w", err)
	}

	a.healthChecker.RequireFreshness(a.engine.LastPass, cfg.ReadyMaxStaleness)
	a.httpServer = a.setupHTTPServer(opts)

	return a, nil
}

func (a *App) setupHTTPServer(opts *Options) *httpserver.Server {
	serverCfg := &httpserver.Config{
		Port:          a.cfg.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		APIToken:      a.cfg.APIToken,
	}
	if !opts.DisableAPI {
		serverCfg.Grid = a.grid
		serverCfg.Reconciler = a.engine
		if a.breaker != nil {
			serverCfg.Guard = a.breaker
		}
	}
	return httpserver.New(serverCfg)
}

func setupCache(logger *zap.Logger) (*cache.RistrettoCache, error) {
	return cache.NewRistrettoCache(cache.DefaultRistrettoConfig(logger))
}

func setupExchange(ctx context.Context, cfg *config.Config, logger *zap.Logger, c cache.Cache) (*exchange.Client, error) {
	apiKey, secretKey := cfg.Credentials()

	client, err := exchange.New(&exchange.Config{
		BaseURL:        cfg.BaseURL(),
		APIKey:         apiKey,
		SecretKey:      secretKey,
		Symbol:         cfg.Symbol,
		BaseAsset:      cfg.BaseAsset,
		QuoteAsset:     cfg.QuoteAsset,
		RecvWindow:     cfg.RecvWindow,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.RetryInitialBackoff,
		MaxBackoff:     cfg.RetryMaxBackoff,
		Cache:          c,
		FilterTTL:      cfg.FilterCacheTTL,
		PriceTTL:       cfg.PriceCacheTTL,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	err = client.SyncTime(ctx)
	if err != nil {
		// Signed requests resync on the first timestamp error.
		logger.Warn("exchange-time-sync-failed", zap.Error(err))
	}

	return client, nil
}

func setupBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (pending.Backend, error) {
	switch cfg.StorageMode {
	case config.StoragePostgres:
		return pending.NewPostgresBackend(ctx, &pending.PostgresConfig{
			Host:      cfg.PostgresHost,
			Port:      cfg.PostgresPort,
			User:      cfg.PostgresUser,
			Password:  cfg.PostgresPass,
			Database:  cfg.PostgresDB,
			SSLMode:   cfg.PostgresSSL,
			Namespace: cfg.Namespace(),
			Logger:    logger,
		})
	case config.StorageMemory:
		logger.Warn("pending-store-in-memory",
			zap.String("note", "pending pairs are lost on restart"))
		return pending.NewMemoryBackend(), nil
	default:
		return pending.NewPebbleBackend(&pending.PebbleConfig{
			Dir:       cfg.PebbleDir,
			Namespace: cfg.Namespace(),
			Logger:    logger,
		})
	}
}

func setupBook(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pending.Book, error) {
	backend, err := setupBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	book, err := pending.NewBook(ctx, &pending.Config{Backend: backend, Logger: logger})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return book, nil
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	if cfg.NotifyMode == config.NotifyKafka {
		return notify.NewKafkaNotifier(&notify.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
	}
	return notify.NewLogNotifier(logger), nil
}

func setupBreaker(
	cfg *config.Config,
	logger *zap.Logger,
	fetcher circuitbreaker.BalanceFetcher,
) (*circuitbreaker.BalanceCircuitBreaker, error) {
	if !cfg.GuardEnabled {
		logger.Info("balance-guard-disabled")
		return nil, nil
	}

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.GuardCheckInterval,
		TradeMultiplier: cfg.GuardTradeMultiplier,
		MinAbsolute:     cfg.GuardMinAbsolute,
		HysteresisRatio: cfg.GuardHysteresisRatio,
		QuoteAsset:      cfg.QuoteAsset,
		Fetcher:         fetcher,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("balance-guard-enabled",
		zap.Duration("check-interval", cfg.GuardCheckInterval),
		zap.Float64("trade-multiplier", cfg.GuardTradeMultiplier),
		zap.Float64("min-absolute", cfg.GuardMinAbsolute),
		zap.Float64("hysteresis-ratio", cfg.GuardHysteresisRatio))
	return breaker, nil
}

func setupEngine(
	cfg *config.Config,
	logger *zap.Logger,
	ex reconcile.Exchange,
	book *pending.Book,
	notifier notify.Notifier,
) (*reconcile.Engine, error) {
	return reconcile.New(&reconcile.Config{
		Exchange:           ex,
		Book:               book,
		Notifier:           notifier,
		Logger:             logger,
		Interval:           cfg.ReconcileInterval,
		TradeHistoryLimit:  cfg.TradeHistoryLimit,
		AmbiguityWarnAfter: cfg.AmbiguityWarnAfter,
		Tolerance:          cfg.MatchTolerance,
		Fees:               feeModel(cfg),
		PlaceholderGrace:   placeholderGrace(cfg),
	})
}

// placeholderGrace bounds how long a buy placement can still be in flight:
// every attempt may run to the request timeout, with a backoff in between.
func placeholderGrace(cfg *config.Config) time.Duration {
	attempts := time.Duration(cfg.MaxRetries + 1)
	return attempts*cfg.RequestTimeout + attempts*cfg.RetryMaxBackoff
}

func gridConfig(cfg *config.Config, logger *zap.Logger, ex grid.Exchange, book *pending.Book) *grid.Config {
	return &grid.Config{
		Exchange:          ex,
		Book:              book,
		Logger:            logger,
		BaseAsset:         cfg.BaseAsset,
		QuoteAsset:        cfg.QuoteAsset,
		FeeRate:           cfg.FeeRate,
		Tolerance:         cfg.MatchTolerance,
		TradeHistoryLimit: cfg.TradeHistoryLimit,
	}
}

func feeModel(cfg *config.Config) profit.FeeModel {
	return profit.FeeModel{
		BaseAsset:  cfg.BaseAsset,
		QuoteAsset: cfg.QuoteAsset,
		FeeRate:    cfg.FeeRate,
	}
}

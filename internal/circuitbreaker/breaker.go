// Package circuitbreaker stops new grid pairs from being opened when the
// free quote balance runs low.
package circuitbreaker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

const recentWindow = 20

// BalanceFetcher fetches account balances. The exchange client and test
// fakes implement it.
type BalanceFetcher interface {
	GetBalances(ctx context.Context) (types.Balances, error)
}

// BalanceCircuitBreaker watches the free quote balance and gates pair creation.
// The disable threshold follows the average invested amount of recent pairs
// and re-enabling requires a hysteresis margin above it.
type BalanceCircuitBreaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	fetcher         BalanceFetcher
	quoteAsset      string
	logger          *zap.Logger
	tradeMultiplier float64
	minAbsolute     float64
	hysteresisRatio float64

	mu               sync.RWMutex
	lastBalance      float64
	lastCheck        time.Time
	recentTrades     []float64
	disableThreshold float64
	enableThreshold  float64

	wg sync.WaitGroup
}

// Config holds circuit breaker configuration.
type Config struct {
	CheckInterval   time.Duration
	TradeMultiplier float64
	MinAbsolute     float64
	HysteresisRatio float64
	QuoteAsset      string
	Fetcher         BalanceFetcher
	Logger          *zap.Logger
}

// Status is a snapshot of the breaker for the HTTP API.
type Status struct {
	Enabled          bool      `json:"enabled"`
	QuoteAsset       string    `json:"quote_asset"`
	LastBalance      float64   `json:"last_balance"`
	LastCheck        time.Time `json:"last_check"`
	DisableThreshold float64   `json:"disable_threshold"`
	EnableThreshold  float64   `json:"enable_threshold"`
	AvgTradeSize     float64   `json:"avg_trade_size"`
	RecentTradeCount int       `json:"recent_trade_count"`
}

// New creates a new circuit breaker. It starts enabled.
func New(cfg *Config) (*BalanceCircuitBreaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("balance fetcher cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("quote asset cannot be empty")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.TradeMultiplier <= 0 {
		return nil, fmt.Errorf("trade multiplier must be positive")
	}
	if cfg.MinAbsolute <= 0 {
		return nil, fmt.Errorf("min absolute must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	b := &BalanceCircuitBreaker{
		checkInterval:    cfg.CheckInterval,
		fetcher:          cfg.Fetcher,
		quoteAsset:       cfg.QuoteAsset,
		logger:           cfg.Logger,
		tradeMultiplier:  cfg.TradeMultiplier,
		minAbsolute:      cfg.MinAbsolute,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentTrades:     make([]float64, 0, recentWindow),
		disableThreshold: cfg.MinAbsolute,
		enableThreshold:  cfg.MinAbsolute * cfg.HysteresisRatio,
	}
	b.enabled.Store(true)

	Enabled.Set(1)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)
	AvgTradeSize.Set(0)

	return b, nil
}

// IsEnabled reports whether new pairs may be opened. Lock-free.
func (b *BalanceCircuitBreaker) IsEnabled() bool {
	return b.enabled.Load()
}

// RecordTrade adds the invested amount of a new pair to the rolling window
// and recalculates the thresholds.
func (b *BalanceCircuitBreaker) RecordTrade(invested float64) {
	if invested <= 0 {
		b.logger.Warn("invalid-trade-size", zap.Float64("size", invested))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentTrades = append(b.recentTrades, invested)
	if len(b.recentTrades) > recentWindow {
		b.recentTrades = b.recentTrades[1:]
	}

	avg := average(b.recentTrades)
	b.disableThreshold = math.Max(avg*b.tradeMultiplier, b.minAbsolute)
	b.enableThreshold = b.disableThreshold * b.hysteresisRatio

	AvgTradeSize.Set(avg)
	DisableThreshold.Set(b.disableThreshold)
	EnableThreshold.Set(b.enableThreshold)

	b.logger.Debug("thresholds-updated",
		zap.Float64("avg-trade-size", avg),
		zap.Int("trade-count", len(b.recentTrades)),
		zap.Float64("disable-threshold", b.disableThreshold),
		zap.Float64("enable-threshold", b.enableThreshold))
}

// CheckBalance fetches the free quote balance and flips the breaker if a
// threshold is crossed.
func (b *BalanceCircuitBreaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		CheckDuration.Observe(time.Since(start).Seconds())
	}()

	balances, err := b.fetcher.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}
	balance := balances.Get(b.quoteAsset).Free

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = time.Now()
	disable := b.disableThreshold
	enable := b.enableThreshold
	b.mu.Unlock()

	QuoteBalance.Set(balance)

	enabled := b.enabled.Load()
	fields := []zap.Field{
		zap.String("asset", b.quoteAsset),
		zap.Float64("balance", balance),
		zap.Float64("disable-threshold", disable),
		zap.Float64("enable-threshold", enable),
	}

	switch {
	case enabled && balance < disable:
		b.enabled.Store(false)
		Enabled.Set(0)
		StateChanges.Inc()
		b.logger.Warn("circuit-breaker-disabled", fields...)
	case !enabled && balance >= enable:
		b.enabled.Store(true)
		Enabled.Set(1)
		StateChanges.Inc()
		b.logger.Info("circuit-breaker-enabled", fields...)
	default:
		b.logger.Debug("balance-checked", append(fields, zap.Bool("enabled", enabled))...)
	}

	return nil
}

// Start checks the balance immediately and then every check interval until
// ctx is cancelled.
func (b *BalanceCircuitBreaker) Start(ctx context.Context) {
	b.logger.Info("circuit-breaker-started",
		zap.String("asset", b.quoteAsset),
		zap.Duration("check-interval", b.checkInterval),
		zap.Float64("trade-multiplier", b.tradeMultiplier),
		zap.Float64("min-absolute", b.minAbsolute),
		zap.Float64("hysteresis-ratio", b.hysteresisRatio))

	err := b.CheckBalance(ctx)
	if err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	b.wg.Add(1)
	go b.monitorLoop(ctx)
}

// Close waits for the monitor loop to exit after its context is cancelled.
func (b *BalanceCircuitBreaker) Close() {
	b.wg.Wait()
}

func (b *BalanceCircuitBreaker) monitorLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("circuit-breaker-stopped")
			return
		case <-ticker.C:
			err := b.CheckBalance(ctx)
			if err != nil {
				b.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns the current breaker state.
func (b *BalanceCircuitBreaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		QuoteAsset:       b.quoteAsset,
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgTradeSize:     average(b.recentTrades),
		RecentTradeCount: len(b.recentTrades),
	}
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

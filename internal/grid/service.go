// Package grid implements the operator commands and queries of the grid bot.
package grid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

var (
	// ErrPairNotFound is returned when no pending pair has the given id.
	ErrPairNotFound = errors.New("pending pair not found")

	// ErrPositionNotFound is returned when no open position has the given sell order id.
	ErrPositionNotFound = errors.New("open position not found")

	// ErrBuyAlreadyFilled is returned when a buy could not be modified because
	// it already (partially) filled. Reconciliation promotes it.
	ErrBuyAlreadyFilled = errors.New("buy order already filled")

	// ErrPositionClosed is returned when the sell of a position is no longer open.
	ErrPositionClosed = errors.New("position already closed")

	// ErrInvalidInput is returned for non-positive prices or amounts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrBalanceGuardOpen is returned when the circuit breaker blocks new pairs.
	ErrBalanceGuardOpen = errors.New("pair creation disabled: quote balance below threshold")
)

// Exchange is the subset of the exchange client the service needs.
type Exchange interface {
	PlaceLimitOrder(ctx context.Context, side types.Side, price, quantity float64, clientOrderID string) (*types.Order, error)
	PlaceMarketOrder(ctx context.Context, side types.Side, quantity float64, clientOrderID string) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*types.Order, error)
	QueryOrder(ctx context.Context, ref types.OrderRef) (*types.Order, error)
	GetOpenOrders(ctx context.Context) ([]types.Order, error)
	GetTradeHistory(ctx context.Context, limit int) ([]types.Trade, error)
	GetBalances(ctx context.Context) (types.Balances, error)
	GetTickerPrice(ctx context.Context) (float64, error)
	GetKlines(ctx context.Context, interval string, limit int) ([]types.Kline, error)
}

// Guard gates pair creation. The balance circuit breaker implements it.
type Guard interface {
	IsEnabled() bool
	RecordTrade(invested float64)
}

// StatusSource provides the derived pair states of the last reconciliation pass.
type StatusSource interface {
	Statuses() []reconcile.PairStatus
}

// Service executes operator commands against the exchange and the pending book.
// Commands hold the book's exclusive lock across their exchange calls so they
// never interleave with each other or with a reconciliation pass.
type Service struct {
	exchange          Exchange
	book              *pending.Book
	guard             Guard
	statuses          StatusSource
	logger            *zap.Logger
	baseAsset         string
	quoteAsset        string
	tradeHistoryLimit int
	match             reconcile.MatchConfig
}

// Config holds service configuration.
type Config struct {
	Exchange          Exchange
	Book              *pending.Book
	Guard             Guard
	Statuses          StatusSource
	Logger            *zap.Logger
	BaseAsset         string
	QuoteAsset        string
	FeeRate           float64
	Tolerance         float64
	TradeHistoryLimit int
}

// New creates a new service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if cfg.Book == nil {
		return nil, fmt.Errorf("book cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.BaseAsset == "" || cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("base and quote asset cannot be empty")
	}
	if cfg.FeeRate < 0 {
		return nil, fmt.Errorf("fee rate cannot be negative")
	}

	limit := cfg.TradeHistoryLimit
	if limit <= 0 {
		limit = 500
	}

	return &Service{
		exchange:          cfg.Exchange,
		book:              cfg.Book,
		guard:             cfg.Guard,
		statuses:          cfg.Statuses,
		logger:            cfg.Logger,
		baseAsset:         cfg.BaseAsset,
		quoteAsset:        cfg.QuoteAsset,
		tradeHistoryLimit: limit,
		match: reconcile.MatchConfig{
			Tolerance: cfg.Tolerance,
			Fees: profit.FeeModel{
				BaseAsset:  cfg.BaseAsset,
				QuoteAsset: cfg.QuoteAsset,
				FeeRate:    cfg.FeeRate,
			},
		},
	}, nil
}

// FeeRate returns the configured fee rate.
func (s *Service) FeeRate() float64 {
	return s.match.Fees.FeeRate
}

func observe(command string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
	CommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

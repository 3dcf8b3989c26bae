package app

import (
	"context"
	"fmt"

	"github.com/mselser95/gridbot/internal/exchange"
	"github.com/mselser95/gridbot/internal/grid"
	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/pkg/cache"
	"github.com/mselser95/gridbot/pkg/config"
	"go.uber.org/zap"
)

// Session gives one-shot CLI commands the grid service without the
// reconciliation loop, balance guard or HTTP server. With the pebble backend
// it cannot be opened while the bot is running against the same directory.
type Session struct {
	Grid     *grid.Service
	Exchange *exchange.Client

	book   *pending.Book
	cache  *cache.RistrettoCache
	logger *zap.Logger
}

// OpenSession connects to the exchange and opens the pending pair store.
func OpenSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Session, err error) {
	err = cfg.RequireCredentials()
	if err != nil {
		return nil, err
	}

	s := &Session{logger: logger}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.cache, err = setupCache(logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	s.Exchange, err = setupExchange(ctx, cfg, logger, s.cache)
	if err != nil {
		return nil, fmt.Errorf("setup exchange: %w", err)
	}

	s.book, err = setupBook(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("setup pending store: %w", err)
	}

	s.Grid, err = grid.New(gridConfig(cfg, logger, s.Exchange, s.book))
	if err != nil {
		return nil, fmt.Errorf("setup grid service: %w", err)
	}

	return s, nil
}

// Close releases the store and cache.
func (s *Session) Close() {
	if s.book != nil {
		err := s.book.Close()
		if err != nil {
			s.logger.Error("pending-store-close-error", zap.Error(err))
		}
	}
	if s.cache != nil {
		s.cache.Close()
	}
}

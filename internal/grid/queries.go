package grid

import (
	"context"
	"fmt"

	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
	"golang.org/x/sync/errgroup"
)

// derive fetches open orders and trade history concurrently and matches them.
func (s *Service) derive(ctx context.Context) (reconcile.MatchResult, error) {
	var (
		openOrders []types.Order
		trades     []types.Trade
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		openOrders, err = s.exchange.GetOpenOrders(gctx)
		if err != nil {
			return fmt.Errorf("get open orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trades, err = s.exchange.GetTradeHistory(gctx, s.tradeHistoryLimit)
		if err != nil {
			return fmt.Errorf("get trade history: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		return reconcile.MatchResult{}, err
	}

	return reconcile.Match(trades, openOrders, s.match), nil
}

// GetOpenPositions returns filled buys whose sell is still open.
func (s *Service) GetOpenPositions(ctx context.Context) ([]reconcile.OpenPosition, error) {
	result, err := s.derive(ctx)
	if err != nil {
		return nil, err
	}
	return result.Positions, nil
}

// GetCompletedPairs returns up to limit completed round-trips, newest first.
// A non-positive limit returns all of them.
func (s *Service) GetCompletedPairs(ctx context.Context, limit int) ([]reconcile.CompletedPair, error) {
	result, err := s.derive(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(result.Completed) > limit {
		return result.Completed[:limit], nil
	}
	return result.Completed, nil
}

// GetPendingPairs returns every pending pair with its reconciliation state.
// Pairs created after the last pass are reported as BUY_PENDING.
func (s *Service) GetPendingPairs() []reconcile.PairStatus {
	known := make(map[string]reconcile.PairStatus)
	if s.statuses != nil {
		for _, st := range s.statuses.Statuses() {
			known[st.Pair.ID] = st
		}
	}

	pairs := s.book.All()
	out := make([]reconcile.PairStatus, 0, len(pairs))
	for _, p := range pairs {
		st, ok := known[p.ID]
		if !ok {
			st = reconcile.PairStatus{State: reconcile.StateBuyPending}
		}
		st.Pair = p
		out = append(out, st)
	}
	return out
}

// GetAccountBalance returns the base and quote balances valued at the current price.
func (s *Service) GetAccountBalance(ctx context.Context) (*types.AccountBalance, error) {
	var (
		balances types.Balances
		price    float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balances, err = s.exchange.GetBalances(gctx)
		if err != nil {
			return fmt.Errorf("get balances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		price, err = s.exchange.GetTickerPrice(gctx)
		if err != nil {
			return fmt.Errorf("get ticker price: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		return nil, err
	}

	return types.NewAccountBalance(balances, s.baseAsset, s.quoteAsset, price), nil
}

// GetProfitSummary aggregates realized profit over the completed pairs in
// the trade history window.
func (s *Service) GetProfitSummary(ctx context.Context) (profit.Summary, error) {
	completed, err := s.GetCompletedPairs(ctx, 0)
	if err != nil {
		return profit.Summary{}, err
	}

	trips := make([]profit.Breakdown, 0, len(completed))
	for i := range completed {
		trips = append(trips, completed[i].Breakdown())
	}
	return profit.Summarize(trips), nil
}

// GetPrice returns the last traded price of the symbol.
func (s *Service) GetPrice(ctx context.Context) (float64, error) {
	return s.exchange.GetTickerPrice(ctx)
}

// GetKlines returns recent candles of the symbol.
func (s *Service) GetKlines(ctx context.Context, interval string, limit int) ([]types.Kline, error) {
	if interval == "" {
		interval = "1h"
	}
	if limit <= 0 {
		limit = 100
	}
	return s.exchange.GetKlines(ctx, interval, limit)
}

// Package reconcile drives pending pairs through their lifecycle by polling
// exchange state, and derives open positions and completed pairs.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mselser95/gridbot/internal/notify"
	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPassInFlight is returned by RunOnce when another pass is still running.
var ErrPassInFlight = errors.New("reconciliation pass already in flight")

// Exchange is the subset of the exchange client the engine needs.
type Exchange interface {
	GetOpenOrders(ctx context.Context) ([]types.Order, error)
	GetTradeHistory(ctx context.Context, limit int) ([]types.Trade, error)
	GetOrderTrades(ctx context.Context, orderID int64) ([]types.Trade, error)
	GetBalances(ctx context.Context) (types.Balances, error)
	QueryOrder(ctx context.Context, ref types.OrderRef) (*types.Order, error)
	PlaceLimitOrder(ctx context.Context, side types.Side, price, quantity float64, clientOrderID string) (*types.Order, error)
}

// Engine runs reconciliation passes on a fixed interval.
type Engine struct {
	exchange           Exchange
	book               *pending.Book
	notifier           notify.Notifier
	logger             *zap.Logger
	interval           time.Duration
	tradeHistoryLimit  int
	ambiguityWarnAfter int
	placeholderGrace   time.Duration
	placeholderMisses  int
	match              MatchConfig

	running atomic.Bool

	mu            sync.RWMutex
	states        map[string]*pairState
	view          View
	lastPass      time.Time
	seenCompleted map[int64]bool
	seeded        bool

	wg sync.WaitGroup
}

// Config holds engine configuration.
type Config struct {
	Exchange           Exchange
	Book               *pending.Book
	Notifier           notify.Notifier
	Logger             *zap.Logger
	Interval           time.Duration
	TradeHistoryLimit  int
	AmbiguityWarnAfter int
	Tolerance          float64
	Fees               profit.FeeModel

	// PlaceholderGrace is how old a pair without a buy order id must be
	// before an unknown client order id may discard it. It should cover
	// the longest time a placement can still be in flight.
	PlaceholderGrace time.Duration

	// PlaceholderMisses is how many consecutive unknown lookups discard a
	// pair without a buy order id once it is past the grace period.
	PlaceholderMisses int
}

// New creates a new reconciliation engine.
func New(cfg *Config) (*Engine, error) {
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
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(cfg.Logger)
	}
	limit := cfg.TradeHistoryLimit
	if limit <= 0 {
		limit = 500
	}
	warnAfter := cfg.AmbiguityWarnAfter
	if warnAfter <= 0 {
		warnAfter = 5
	}
	grace := cfg.PlaceholderGrace
	if grace <= 0 {
		grace = time.Minute
	}
	misses := cfg.PlaceholderMisses
	if misses <= 0 {
		misses = 3
	}

	return &Engine{
		exchange:           cfg.Exchange,
		book:               cfg.Book,
		notifier:           notifier,
		logger:             cfg.Logger,
		interval:           cfg.Interval,
		tradeHistoryLimit:  limit,
		ambiguityWarnAfter: warnAfter,
		placeholderGrace:   grace,
		placeholderMisses:  misses,
		match:              MatchConfig{Tolerance: cfg.Tolerance, Fees: cfg.Fees},
		states:             make(map[string]*pairState),
		seenCompleted:      make(map[int64]bool),
	}, nil
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("reconciler-starting",
		zap.Duration("interval", e.interval),
		zap.Int("trade-history-limit", e.tradeHistoryLimit),
		zap.Int("ambiguity-warn-after", e.ambiguityWarnAfter))

	e.wg.Add(1)
	go e.loop(ctx)

	return nil
}

// Close waits for the loop to exit. Cancel the context passed to Start first.
func (e *Engine) Close() error {
	e.wg.Wait()
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	e.tick(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("reconciler-stopping")
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	err := e.RunOnce(ctx)
	if err != nil && !errors.Is(err, ErrPassInFlight) && ctx.Err() == nil {
		e.logger.Error("reconcile-pass-failed", zap.Error(err))
	}
}

// RunOnce performs one reconciliation pass. It returns ErrPassInFlight
// without doing anything if a pass is already running.
func (e *Engine) RunOnce(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		PassSkippedTotal.Inc()
		e.logger.Debug("reconcile-pass-skipped")
		return ErrPassInFlight
	}
	defer e.running.Store(false)

	start := time.Now()
	defer func() {
		PassDuration.Observe(time.Since(start).Seconds())
	}()

	e.book.Lock()
	defer e.book.Unlock()

	openOrders, trades, balances, err := e.fetch(ctx)
	if err != nil {
		PassErrorsTotal.Inc()
		return err
	}

	openByID := make(map[int64]types.Order, len(openOrders))
	openByClientID := make(map[string]types.Order, len(openOrders))
	for _, o := range openOrders {
		openByID[o.ID] = o
		if o.ClientOrderID != "" {
			openByClientID[o.ClientOrderID] = o
		}
	}

	pairs := e.book.All()
	for i := range pairs {
		e.advance(ctx, &pairs[i], openByID, openByClientID)
	}

	result := Match(trades, openOrders, e.match)
	e.publish(ctx, result, balances)

	e.logger.Debug("reconcile-pass-complete",
		zap.Int("open-orders", len(openOrders)),
		zap.Int("trades", len(trades)),
		zap.Int("pending-pairs", e.book.Len()),
		zap.Int("open-positions", len(result.Positions)),
		zap.Int("completed-pairs", len(result.Completed)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// fetch reads open orders, trade history and balances concurrently.
// A balance failure is logged and does not abort the pass.
func (e *Engine) fetch(ctx context.Context) ([]types.Order, []types.Trade, types.Balances, error) {
	var (
		openOrders []types.Order
		trades     []types.Trade
		balances   types.Balances
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		openOrders, err = e.exchange.GetOpenOrders(gctx)
		if err != nil {
			return fmt.Errorf("get open orders: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trades, err = e.exchange.GetTradeHistory(gctx, e.tradeHistoryLimit)
		if err != nil {
			return fmt.Errorf("get trade history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		balances, err = e.exchange.GetBalances(gctx)
		if err != nil {
			e.logger.Warn("reconcile-balances-unavailable", zap.Error(err))
			balances = nil
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		return nil, nil, nil, err
	}
	return openOrders, trades, balances, nil
}

// advance moves one pair through the state machine as far as the current
// exchange state allows.
func (e *Engine) advance(
	ctx context.Context,
	p *pending.Pair,
	openByID map[int64]types.Order,
	openByClientID map[string]types.Order,
) {
	st := e.stateFor(p.ID)

	if !p.HasBuyOrder() {
		e.resolvePlaceholder(ctx, p, st, openByClientID)
		return
	}

	if order, open := openByID[p.BuyOrderID]; open {
		if st.state != StateBuyPending {
			e.logger.Info("pending-pair-buy-reopened",
				zap.String("pair-id", p.ID),
				zap.Int64("buy-order-id", p.BuyOrderID),
				zap.String("previous-state", string(st.state)))
		}
		st.state = StateBuyPending
		st.missedPolls = 0
		st.lastExchangeStatus = order.Status
		return
	}

	if st.state == StateBuyPending {
		st.state = StateCheckingFill
		e.logger.Info("pending-pair-buy-left-book",
			zap.String("pair-id", p.ID),
			zap.Int64("buy-order-id", p.BuyOrderID))
	}

	if st.state == StateCheckingFill {
		if !e.checkFill(ctx, p, st) {
			return
		}
	}

	if st.state == StatePromoting {
		e.promote(ctx, p, st, openByClientID)
	}
}

// checkFill looks up the fills of the buy. It reports whether the pair
// moved to PROMOTING.
func (e *Engine) checkFill(ctx context.Context, p *pending.Pair, st *pairState) bool {
	trades, err := e.exchange.GetOrderTrades(ctx, p.BuyOrderID)
	if err != nil {
		st.lastError = err.Error()
		e.logger.Warn("pending-pair-fill-lookup-failed",
			zap.String("pair-id", p.ID),
			zap.Int64("buy-order-id", p.BuyOrderID),
			zap.Error(err))
		return false
	}

	filled := 0.0
	for _, t := range trades {
		if t.IsBuyer && t.OrderID == p.BuyOrderID {
			filled += t.Quantity
		}
	}

	if filled <= 0 {
		st.missedPolls++
		AmbiguitiesTotal.Inc()

		ambiguity := &AmbiguityError{PairID: p.ID, BuyOrderID: p.BuyOrderID, MissedPolls: st.missedPolls}
		st.lastError = ambiguity.Error()
		e.logger.Info("pending-pair-fill-ambiguous",
			zap.String("pair-id", p.ID),
			zap.Int64("buy-order-id", p.BuyOrderID),
			zap.Int("missed-polls", st.missedPolls),
			zap.Error(ambiguity))

		if st.missedPolls%e.ambiguityWarnAfter == 0 {
			e.escalate(ctx, p, st)
		}
		return false
	}

	st.state = StatePromoting
	st.missedPolls = 0
	st.filledQuantity = filled
	st.lastError = ""

	e.logger.Info("pending-pair-buy-filled",
		zap.String("pair-id", p.ID),
		zap.Int64("buy-order-id", p.BuyOrderID),
		zap.Float64("filled-quantity", filled),
		zap.Float64("pair-quantity", p.Quantity))

	e.emit(ctx, notify.Event{
		Type:     notify.EventBuyFilled,
		PairID:   p.ID,
		OrderID:  p.BuyOrderID,
		Side:     types.SideBuy,
		Price:    p.BuyPrice,
		Quantity: filled,
	})

	return true
}

// escalate asks the exchange for the buy order status after repeated misses.
// The pair is never deleted here; an operator decides.
func (e *Engine) escalate(ctx context.Context, p *pending.Pair, st *pairState) {
	order, err := e.exchange.QueryOrder(ctx, types.OrderRef{OrderID: p.BuyOrderID})
	if err != nil {
		e.logger.Warn("pending-pair-status-query-failed",
			zap.String("pair-id", p.ID),
			zap.Int64("buy-order-id", p.BuyOrderID),
			zap.Error(err))
		return
	}

	st.lastExchangeStatus = order.Status

	fields := []zap.Field{
		zap.String("pair-id", p.ID),
		zap.Int64("buy-order-id", p.BuyOrderID),
		zap.String("status", string(order.Status)),
		zap.Float64("executed-qty", order.ExecutedQty),
		zap.Int("missed-polls", st.missedPolls),
	}

	terminal := order.Status == types.OrderStatusCanceled ||
		order.Status == types.OrderStatusExpired ||
		order.Status == types.OrderStatusRejected
	if terminal && order.ExecutedQty == 0 {
		e.logger.Warn("pending-pair-buy-gone-without-fill", fields...)
		e.emit(ctx, notify.Event{
			Type:    notify.EventFillAmbiguous,
			PairID:  p.ID,
			OrderID: p.BuyOrderID,
			Side:    types.SideBuy,
			Message: fmt.Sprintf("buy order %s with no fill; cancel the pair to discard it", order.Status),
		})
		return
	}

	e.logger.Warn("pending-pair-fills-not-visible", fields...)
	e.emit(ctx, notify.Event{
		Type:    notify.EventFillAmbiguous,
		PairID:  p.ID,
		OrderID: p.BuyOrderID,
		Side:    types.SideBuy,
		Message: fmt.Sprintf("buy order %s but fills not visible yet", order.Status),
	})
}

// promote places the pair's sell exactly once and removes the pair.
func (e *Engine) promote(
	ctx context.Context,
	p *pending.Pair,
	st *pairState,
	openByClientID map[string]types.Order,
) {
	clientID := p.SellClientOrderID()

	if existing, ok := openByClientID[clientID]; ok {
		e.finishPromotion(ctx, p, &existing, "adopted-open")
		return
	}

	existing, err := e.exchange.QueryOrder(ctx, types.OrderRef{ClientOrderID: clientID})
	switch {
	case err == nil:
		e.finishPromotion(ctx, p, existing, "adopted-history")
		return
	case !types.IsUnknownOrder(err):
		st.lastError = err.Error()
		e.logger.Warn("pending-pair-sell-lookup-failed",
			zap.String("pair-id", p.ID),
			zap.String("sell-client-order-id", clientID),
			zap.Error(err))
		return
	}

	qty := st.filledQuantity
	if qty <= 0 || qty > p.Quantity {
		qty = p.Quantity
	}

	order, err := e.exchange.PlaceLimitOrder(ctx, types.SideSell, p.SellPrice, qty, clientID)
	if err != nil {
		if types.IsDuplicateOrder(err) {
			e.finishPromotion(ctx, p, &types.Order{ClientOrderID: clientID, Price: p.SellPrice, Quantity: qty}, "duplicate")
			return
		}

		PromotionFailuresTotal.Inc()
		st.lastError = err.Error()
		e.logger.Error("pending-pair-sell-placement-failed",
			zap.String("pair-id", p.ID),
			zap.Float64("sell-price", p.SellPrice),
			zap.Float64("quantity", qty),
			zap.Error(err))
		return
	}

	e.finishPromotion(ctx, p, order, "placed")
}

func (e *Engine) finishPromotion(ctx context.Context, p *pending.Pair, sell *types.Order, how string) {
	err := e.book.Remove(ctx, p.ID)
	if err != nil && !errors.Is(err, pending.ErrNotFound) {
		// The sell exists; the next pass adopts it by client order id.
		e.logger.Error("pending-pair-remove-failed",
			zap.String("pair-id", p.ID),
			zap.Int64("sell-order-id", sell.ID),
			zap.Error(err))
		return
	}

	e.mu.Lock()
	delete(e.states, p.ID)
	e.mu.Unlock()

	PromotionsTotal.Inc()
	e.logger.Info("pending-pair-promoted",
		zap.String("pair-id", p.ID),
		zap.String("how", how),
		zap.Int64("buy-order-id", p.BuyOrderID),
		zap.Int64("sell-order-id", sell.ID),
		zap.Float64("sell-price", sell.Price),
		zap.Float64("quantity", sell.Quantity))

	e.emit(ctx, notify.Event{
		Type:     notify.EventSellPlaced,
		PairID:   p.ID,
		OrderID:  sell.ID,
		Side:     types.SideSell,
		Price:    sell.Price,
		Quantity: sell.Quantity,
	})
}

// resolvePlaceholder handles a pair recorded before its buy order id was
// known: the process died mid-creation or the placement outcome was never
// confirmed. The pair is discarded only once it is past the grace period and
// the client order id came back unknown on several consecutive passes.
func (e *Engine) resolvePlaceholder(
	ctx context.Context,
	p *pending.Pair,
	st *pairState,
	openByClientID map[string]types.Order,
) {
	var order *types.Order
	if o, ok := openByClientID[p.BuyClientOrderID]; ok {
		order = &o
	} else {
		found, err := e.exchange.QueryOrder(ctx, types.OrderRef{ClientOrderID: p.BuyClientOrderID})
		switch {
		case err == nil:
			order = found
		case types.IsUnknownOrder(err):
			st.unknownLookups++
			age := time.Since(p.CreatedAt)
			if age < e.placeholderGrace || st.unknownLookups < e.placeholderMisses {
				st.lastError = err.Error()
				e.logger.Info("pending-placeholder-not-found-yet",
					zap.String("pair-id", p.ID),
					zap.String("buy-client-order-id", p.BuyClientOrderID),
					zap.Duration("age", age),
					zap.Int("unknown-lookups", st.unknownLookups))
				return
			}
			removeErr := e.book.Remove(ctx, p.ID)
			if removeErr != nil {
				e.logger.Error("pending-placeholder-remove-failed",
					zap.String("pair-id", p.ID), zap.Error(removeErr))
				return
			}
			e.mu.Lock()
			delete(e.states, p.ID)
			e.mu.Unlock()
			e.logger.Warn("pending-placeholder-discarded",
				zap.String("pair-id", p.ID),
				zap.String("buy-client-order-id", p.BuyClientOrderID),
				zap.Duration("age", age),
				zap.Int("unknown-lookups", st.unknownLookups))
			return
		default:
			st.lastError = err.Error()
			e.logger.Warn("pending-placeholder-lookup-failed",
				zap.String("pair-id", p.ID), zap.Error(err))
			return
		}
	}

	err := e.book.UpdateBuyOrder(ctx, p.ID, pending.BuyOrder{
		OrderID:       order.ID,
		ClientOrderID: p.BuyClientOrderID,
		Price:         p.BuyPrice,
		Quantity:      p.Quantity,
	})
	if err != nil {
		st.lastError = err.Error()
		e.logger.Error("pending-placeholder-adopt-failed",
			zap.String("pair-id", p.ID), zap.Error(err))
		return
	}

	st.lastExchangeStatus = order.Status
	e.logger.Info("pending-placeholder-adopted",
		zap.String("pair-id", p.ID),
		zap.Int64("buy-order-id", order.ID),
		zap.String("status", string(order.Status)))
}

func (e *Engine) stateFor(id string) *pairState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.states[id]
	if !ok {
		st = &pairState{state: StateBuyPending}
		e.states[id] = st
	}
	return st
}

func (e *Engine) publish(ctx context.Context, result MatchResult, balances types.Balances) {
	pairs := e.book.All()
	live := make(map[string]bool, len(pairs))
	statuses := make([]PairStatus, 0, len(pairs))
	counts := map[State]int{StateBuyPending: 0, StateCheckingFill: 0, StatePromoting: 0}

	e.mu.Lock()
	for _, p := range pairs {
		live[p.ID] = true
		st, ok := e.states[p.ID]
		if !ok {
			st = &pairState{state: StateBuyPending}
			e.states[p.ID] = st
		}
		counts[st.state]++
		statuses = append(statuses, PairStatus{
			Pair:               p,
			State:              st.state,
			MissedPolls:        st.missedPolls,
			FilledQuantity:     st.filledQuantity,
			LastExchangeStatus: st.lastExchangeStatus,
			LastError:          st.lastError,
		})
	}
	for id := range e.states {
		if !live[id] {
			delete(e.states, id)
		}
	}

	var fresh []CompletedPair
	for _, c := range result.Completed {
		if !e.seenCompleted[c.SellTradeID] {
			e.seenCompleted[c.SellTradeID] = true
			if e.seeded {
				fresh = append(fresh, c)
			}
		}
	}
	e.seeded = true

	if balances == nil {
		balances = e.view.Balances
	}
	e.view = View{
		Positions: result.Positions,
		Completed: result.Completed,
		Pending:   statuses,
		Balances:  balances,
		UpdatedAt: time.Now().UTC(),
	}
	e.lastPass = e.view.UpdatedAt
	e.mu.Unlock()

	for state, n := range counts {
		PairsByState.WithLabelValues(string(state)).Set(float64(n))
	}
	OpenPositions.Set(float64(len(result.Positions)))

	for _, c := range fresh {
		e.emit(ctx, notify.Event{
			Type:      notify.EventPairCompleted,
			OrderID:   c.SellOrderID,
			Side:      types.SideSell,
			Price:     c.SellPrice,
			Quantity:  c.Quantity,
			NetProfit: c.NetProfit,
		})
	}
}

func (e *Engine) emit(ctx context.Context, ev notify.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	err := e.notifier.Notify(ctx, ev)
	if err != nil {
		e.logger.Warn("notify-failed",
			zap.String("type", string(ev.Type)),
			zap.Error(err))
	}
}

// View returns the snapshot of the last successful pass.
func (e *Engine) View() View {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.view
}

// Statuses returns the derived state of every pending pair as of the last pass.
func (e *Engine) Statuses() []PairStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]PairStatus, len(e.view.Pending))
	copy(out, e.view.Pending)
	return out
}

// LastPass returns the completion time of the last successful pass.
func (e *Engine) LastPass() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPass
}

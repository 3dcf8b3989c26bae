package grid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mselser95/gridbot/internal/pending"
	"github.com/mselser95/gridbot/internal/reconcile"
	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

// CreatePair places a buy of amountQuote/buyPrice at buyPrice and records a
// pending pair that sells at sellPrice once the buy fills. The record is
// written before the order is sent so a crash in between is recoverable by
// its client order id.
func (s *Service) CreatePair(ctx context.Context, buyPrice, sellPrice, amountQuote float64) (p *pending.Pair, err error) {
	start := time.Now()
	defer func() { observe("create-pair", start, err) }()

	if buyPrice <= 0 || sellPrice <= 0 || amountQuote <= 0 {
		return nil, fmt.Errorf("%w: buy price, sell price and amount must be positive", ErrInvalidInput)
	}
	if s.guard != nil && !s.guard.IsEnabled() {
		return nil, ErrBalanceGuardOpen
	}

	quantity := amountQuote / buyPrice

	s.book.Lock()
	defer s.book.Unlock()

	pair := pending.NewPair(buyPrice, sellPrice, quantity, amountQuote)
	err = s.book.Add(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("record pending pair: %w", err)
	}

	order, err := s.exchange.PlaceLimitOrder(ctx, types.SideBuy, buyPrice, quantity, pair.BuyClientOrderID)
	if err != nil {
		s.discardUnplaced(ctx, &pair, err)
		return nil, err
	}

	err = s.book.UpdateBuyOrder(ctx, pair.ID, acceptedBuy(order, pair.BuyClientOrderID, buyPrice, quantity, 0))
	if err != nil {
		// The placeholder stays; reconciliation adopts the order by client id.
		s.logger.Error("pending-pair-buy-not-recorded",
			zap.String("pair-id", pair.ID),
			zap.Int64("buy-order-id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("record buy order %d: %w", order.ID, err)
	}

	if s.guard != nil {
		s.guard.RecordTrade(amountQuote)
	}

	created, _ := s.book.Get(pair.ID)

	s.logger.Info("pair-created",
		zap.String("pair-id", created.ID),
		zap.Int64("buy-order-id", created.BuyOrderID),
		zap.Float64("buy-price", created.BuyPrice),
		zap.Float64("sell-price", created.SellPrice),
		zap.Float64("quantity", created.Quantity),
		zap.Float64("invested", created.InvestedAmount))

	return &created, nil
}

// discardUnplaced removes the placeholder of a buy the exchange did not
// accept. If the outcome of the placement is unknown the placeholder is kept
// so reconciliation can look the order up by its client id.
func (s *Service) discardUnplaced(ctx context.Context, pair *pending.Pair, placeErr error) {
	if !definitelyNotPlaced(placeErr) {
		s.logger.Warn("pending-pair-placement-unconfirmed",
			zap.String("pair-id", pair.ID),
			zap.String("buy-client-order-id", pair.BuyClientOrderID),
			zap.Error(placeErr))
		return
	}

	err := s.book.Remove(ctx, pair.ID)
	if err != nil {
		s.logger.Error("pending-placeholder-remove-failed",
			zap.String("pair-id", pair.ID),
			zap.Error(err))
	}
}

// definitelyNotPlaced reports whether err proves the exchange did not accept
// an order, as opposed to a timeout or network failure after sending it.
func definitelyNotPlaced(err error) bool {
	var rejection *types.RejectionError
	var auth *types.AuthenticationError
	var rateLimit *types.RateLimitError
	return errors.As(err, &rejection) || errors.As(err, &auth) || errors.As(err, &rateLimit)
}

// ModifyBuyPrice replaces the buy of a pending pair with one at newPrice,
// keeping the invested amount. If the old buy partially filled before the
// cancel, the filled part is sold right away and only the rest is re-bought.
func (s *Service) ModifyBuyPrice(ctx context.Context, pairID string, newPrice float64) (p *pending.Pair, err error) {
	start := time.Now()
	defer func() { observe("modify-buy-price", start, err) }()

	if newPrice <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	s.book.Lock()
	defer s.book.Unlock()

	pair, ok := s.book.Get(pairID)
	if !ok {
		return nil, fmt.Errorf("pair %s: %w", pairID, ErrPairNotFound)
	}
	if !pair.HasBuyOrder() {
		return nil, fmt.Errorf("pair %s: buy order not confirmed yet", pairID)
	}

	executed, err := s.cancelBuy(ctx, &pair)
	if err != nil {
		return nil, err
	}

	invested := pair.InvestedAmount
	if executed > 0 {
		s.sellPartialFill(ctx, &pair, executed)
		invested -= executed * pair.BuyPrice
		if invested <= 0 {
			removeErr := s.book.Remove(ctx, pair.ID)
			if removeErr != nil {
				return nil, fmt.Errorf("remove filled pair: %w", removeErr)
			}
			return nil, fmt.Errorf("pair %s: %w", pairID, ErrBuyAlreadyFilled)
		}
	}

	quantity := invested / newPrice
	clientID := pending.NewClientOrderID(pending.BuyClientOrderPrefix)

	order, err := s.exchange.PlaceLimitOrder(ctx, types.SideBuy, newPrice, quantity, clientID)
	if err != nil {
		s.restoreBuy(ctx, &pair, invested)
		return nil, err
	}

	err = s.book.UpdateBuyOrder(ctx, pair.ID, acceptedBuy(order, clientID, newPrice, quantity, invested))
	if err != nil {
		s.logger.Error("pending-pair-buy-not-recorded",
			zap.String("pair-id", pair.ID),
			zap.Int64("buy-order-id", order.ID),
			zap.Error(err))
		return nil, fmt.Errorf("record buy order %d: %w", order.ID, err)
	}

	updated, _ := s.book.Get(pair.ID)

	s.logger.Info("pair-buy-price-modified",
		zap.String("pair-id", pair.ID),
		zap.Int64("old-buy-order-id", pair.BuyOrderID),
		zap.Int64("buy-order-id", updated.BuyOrderID),
		zap.Float64("old-price", pair.BuyPrice),
		zap.Float64("price", updated.BuyPrice),
		zap.Float64("quantity", updated.Quantity),
		zap.Float64("invested", updated.InvestedAmount))

	return &updated, nil
}

// cancelBuy cancels the pair's buy and returns the quantity it filled before
// the cancel took effect. An order already gone without a fill is fine; one
// that filled aborts with ErrBuyAlreadyFilled.
func (s *Service) cancelBuy(ctx context.Context, pair *pending.Pair) (float64, error) {
	canceled, err := s.exchange.CancelOrder(ctx, pair.BuyOrderID)
	if err == nil {
		return canceled.ExecutedQty, nil
	}
	if !types.IsUnknownOrder(err) {
		return 0, err
	}

	order, qerr := s.exchange.QueryOrder(ctx, types.OrderRef{OrderID: pair.BuyOrderID})
	if qerr != nil {
		return 0, fmt.Errorf("query buy order %d: %w", pair.BuyOrderID, qerr)
	}
	if order.ExecutedQty > 0 {
		return 0, fmt.Errorf("pair %s buy order %d %s: %w", pair.ID, pair.BuyOrderID, order.Status, ErrBuyAlreadyFilled)
	}
	return 0, nil
}

// sellPartialFill places the sell for the part of a buy that filled before it
// was canceled. On failure the filled part is handed to reconciliation.
func (s *Service) sellPartialFill(ctx context.Context, pair *pending.Pair, executed float64) {
	clientID := pending.NewClientOrderID(pending.SellClientOrderPrefix)
	sell, err := s.exchange.PlaceLimitOrder(ctx, types.SideSell, pair.SellPrice, executed, clientID)
	if err != nil {
		s.logger.Error("partial-fill-sell-failed",
			zap.String("pair-id", pair.ID),
			zap.Int64("buy-order-id", pair.BuyOrderID),
			zap.Float64("quantity", executed),
			zap.Error(err))
		s.recordRecovery(ctx, pair.BuyOrderID, pair.BuyPrice, pair.SellPrice, executed)
		return
	}

	s.logger.Info("partial-fill-sell-placed",
		zap.String("pair-id", pair.ID),
		zap.Int64("buy-order-id", pair.BuyOrderID),
		zap.Int64("sell-order-id", sell.ID),
		zap.Float64("quantity", executed))
}

// restoreBuy re-places the canceled buy at its old price after the new buy
// was rejected. If that fails too, the pair has no live buy and is removed.
func (s *Service) restoreBuy(ctx context.Context, pair *pending.Pair, invested float64) {
	quantity := invested / pair.BuyPrice
	clientID := pending.NewClientOrderID(pending.BuyClientOrderPrefix)

	order, err := s.exchange.PlaceLimitOrder(ctx, types.SideBuy, pair.BuyPrice, quantity, clientID)
	if err == nil {
		err = s.book.UpdateBuyOrder(ctx, pair.ID, acceptedBuy(order, clientID, pair.BuyPrice, quantity, invested))
		if err == nil {
			s.logger.Warn("pair-buy-restored",
				zap.String("pair-id", pair.ID),
				zap.Int64("buy-order-id", order.ID),
				zap.Float64("price", pair.BuyPrice))
			return
		}
	}

	s.logger.Error("pair-buy-restore-failed",
		zap.String("pair-id", pair.ID),
		zap.Float64("price", pair.BuyPrice),
		zap.Error(err))

	removeErr := s.book.Remove(ctx, pair.ID)
	if removeErr != nil {
		s.logger.Error("pending-pair-remove-failed",
			zap.String("pair-id", pair.ID),
			zap.Error(removeErr))
	}
}

// ModifySellPrice changes a sell price. id is either a pending pair id, in
// which case only the intended price is updated locally, or the decimal sell
// order id of an open position, whose sell is canceled and re-placed. The
// returned order is nil for a pending pair.
func (s *Service) ModifySellPrice(ctx context.Context, id string, newPrice float64) (*types.Order, error) {
	if _, isPair := s.book.Get(id); isPair {
		return nil, s.ModifyPairSellPrice(ctx, id, newPrice)
	}

	sellOrderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", id, ErrPairNotFound)
	}
	return s.ModifyPositionSellPrice(ctx, sellOrderID, newPrice)
}

// ModifyPairSellPrice updates the intended sell price of a pending pair.
// No exchange call is made.
func (s *Service) ModifyPairSellPrice(ctx context.Context, pairID string, newPrice float64) (err error) {
	start := time.Now()
	defer func() { observe("modify-pair-sell-price", start, err) }()

	if newPrice <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	s.book.Lock()
	defer s.book.Unlock()

	err = s.book.UpdateIntendedSellPrice(ctx, pairID, newPrice)
	if errors.Is(err, pending.ErrNotFound) {
		return fmt.Errorf("pair %s: %w", pairID, ErrPairNotFound)
	}
	if err != nil {
		return err
	}

	s.logger.Info("pair-sell-price-modified",
		zap.String("pair-id", pairID),
		zap.Float64("price", newPrice))

	return nil
}

// ModifyPositionSellPrice cancels the sell of an open position and places a
// new one at newPrice for the unfilled quantity.
func (s *Service) ModifyPositionSellPrice(ctx context.Context, sellOrderID int64, newPrice float64) (o *types.Order, err error) {
	start := time.Now()
	defer func() { observe("modify-position-sell-price", start, err) }()

	if newPrice <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}

	s.book.Lock()
	defer s.book.Unlock()

	pos, err := s.findPosition(ctx, sellOrderID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.cancelSell(ctx, pos)
	if err != nil {
		return nil, err
	}

	clientID := pending.NewClientOrderID(pending.SellClientOrderPrefix)
	order, err := s.exchange.PlaceLimitOrder(ctx, types.SideSell, newPrice, remaining, clientID)
	if err != nil {
		s.restoreSell(ctx, pos, remaining)
		return nil, err
	}

	s.logger.Info("position-sell-price-modified",
		zap.Int64("old-sell-order-id", sellOrderID),
		zap.Int64("sell-order-id", order.ID),
		zap.Float64("old-price", pos.SellPrice),
		zap.Float64("price", order.Price),
		zap.Float64("quantity", order.Quantity))

	return order, nil
}

// CancelPair cancels the buy of a pending pair and removes the pair. The
// record is removed whatever the cancel outcome; an order that is already
// gone counts as canceled and any other cancel error is returned after the
// removal. Quantity the buy filled before the cancel is kept as a recovery
// pair so it still gets its sell.
func (s *Service) CancelPair(ctx context.Context, pairID string) (err error) {
	start := time.Now()
	defer func() { observe("cancel-pair", start, err) }()

	s.book.Lock()
	defer s.book.Unlock()

	pair, ok := s.book.Get(pairID)
	if !ok {
		return fmt.Errorf("pair %s: %w", pairID, ErrPairNotFound)
	}

	cancelErr := s.cancelPairBuy(ctx, &pair)

	err = s.book.Remove(ctx, pair.ID)
	if err != nil {
		return fmt.Errorf("remove pending pair: %w", err)
	}

	s.logger.Info("pair-canceled",
		zap.String("pair-id", pair.ID),
		zap.Int64("buy-order-id", pair.BuyOrderID),
		zap.NamedError("cancel-error", cancelErr))

	if cancelErr != nil {
		return fmt.Errorf("pair %s removed but buy cancel failed: %w", pair.ID, cancelErr)
	}
	return nil
}

func (s *Service) cancelPairBuy(ctx context.Context, pair *pending.Pair) error {
	orderID := pair.BuyOrderID
	if !pair.HasBuyOrder() {
		order, err := s.exchange.QueryOrder(ctx, types.OrderRef{ClientOrderID: pair.BuyClientOrderID})
		if types.IsUnknownOrder(err) {
			return nil
		}
		if err != nil {
			return err
		}
		orderID = order.ID
	}

	canceled, err := s.exchange.CancelOrder(ctx, orderID)
	if types.IsUnknownOrder(err) {
		s.logger.Info("pair-buy-already-gone",
			zap.String("pair-id", pair.ID),
			zap.Int64("buy-order-id", orderID))
		return nil
	}
	if err != nil {
		return err
	}

	if canceled.ExecutedQty > 0 {
		s.logger.Warn("pair-canceled-after-partial-fill",
			zap.String("pair-id", pair.ID),
			zap.Int64("buy-order-id", orderID),
			zap.Float64("executed-qty", canceled.ExecutedQty))
		s.recordRecovery(ctx, orderID, pair.BuyPrice, pair.SellPrice, canceled.ExecutedQty)
	}
	return nil
}

// ClosePosition cancels the sell of an open position and sells its unfilled
// quantity at market. If the market sell fails, the limit sell is restored.
func (s *Service) ClosePosition(ctx context.Context, sellOrderID int64) (o *types.Order, err error) {
	start := time.Now()
	defer func() { observe("close-position", start, err) }()

	s.book.Lock()
	defer s.book.Unlock()

	pos, err := s.findPosition(ctx, sellOrderID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.cancelSell(ctx, pos)
	if err != nil {
		return nil, err
	}

	clientID := pending.NewClientOrderID(pending.SellClientOrderPrefix)
	order, err := s.exchange.PlaceMarketOrder(ctx, types.SideSell, remaining, clientID)
	if err != nil {
		s.restoreSell(ctx, pos, remaining)
		return nil, err
	}

	s.logger.Info("position-closed",
		zap.Int64("sell-order-id", sellOrderID),
		zap.Int64("market-order-id", order.ID),
		zap.Float64("quantity", remaining),
		zap.Float64("executed-qty", order.ExecutedQty))

	return order, nil
}

// findPosition derives the open positions and returns the one whose sell is
// sellOrderID.
func (s *Service) findPosition(ctx context.Context, sellOrderID int64) (*reconcile.OpenPosition, error) {
	result, err := s.derive(ctx)
	if err != nil {
		return nil, err
	}
	for i := range result.Positions {
		if result.Positions[i].SellOrderID == sellOrderID {
			return &result.Positions[i], nil
		}
	}
	return nil, fmt.Errorf("sell order %d: %w", sellOrderID, ErrPositionNotFound)
}

// cancelSell cancels the sell of pos and returns its unfilled quantity. An
// unknown-order answer is checked against the order itself: a retried cancel
// whose first attempt went through, or a cancel from outside the bot, still
// leaves quantity that needs a new sell.
func (s *Service) cancelSell(ctx context.Context, pos *reconcile.OpenPosition) (float64, error) {
	canceled, err := s.exchange.CancelOrder(ctx, pos.SellOrderID)
	if types.IsUnknownOrder(err) {
		canceled, err = s.exchange.QueryOrder(ctx, types.OrderRef{OrderID: pos.SellOrderID})
		if err != nil {
			return 0, fmt.Errorf("query sell order %d: %w", pos.SellOrderID, err)
		}
		if canceled.Status.IsOpen() {
			return 0, fmt.Errorf("sell order %d still %s after cancel", pos.SellOrderID, canceled.Status)
		}
		if canceled.Status == types.OrderStatusFilled {
			return 0, fmt.Errorf("sell order %d: %w", pos.SellOrderID, ErrPositionClosed)
		}
		s.logger.Warn("position-sell-already-canceled",
			zap.Int64("sell-order-id", pos.SellOrderID),
			zap.String("status", string(canceled.Status)),
			zap.Float64("executed-qty", canceled.ExecutedQty))
	}
	if err != nil {
		return 0, err
	}

	quantity := canceled.Quantity
	if quantity <= 0 {
		quantity = pos.Quantity
	}
	remaining := quantity - canceled.ExecutedQty
	if remaining <= 0 {
		return 0, fmt.Errorf("sell order %d filled before cancel: %w", pos.SellOrderID, ErrPositionClosed)
	}
	return remaining, nil
}

// restoreSell re-places the canceled sell at its old price. If that fails
// the position is handed to reconciliation as a recovery pair so it is never
// left without a sell.
func (s *Service) restoreSell(ctx context.Context, pos *reconcile.OpenPosition, quantity float64) {
	clientID := pending.NewClientOrderID(pending.SellClientOrderPrefix)
	order, err := s.exchange.PlaceLimitOrder(ctx, types.SideSell, pos.SellPrice, quantity, clientID)
	if err == nil {
		s.logger.Warn("position-sell-restored",
			zap.Int64("old-sell-order-id", pos.SellOrderID),
			zap.Int64("sell-order-id", order.ID),
			zap.Float64("price", pos.SellPrice))
		return
	}

	s.logger.Error("position-sell-restore-failed",
		zap.Int64("old-sell-order-id", pos.SellOrderID),
		zap.Float64("price", pos.SellPrice),
		zap.Error(err))
	s.recordRecovery(ctx, pos.BuyOrderID, pos.BuyPrice, pos.SellPrice, quantity)
}

// recordRecovery stores a pending pair for an already filled buy so the next
// reconciliation pass places its sell.
func (s *Service) recordRecovery(ctx context.Context, buyOrderID int64, buyPrice, sellPrice, quantity float64) {
	pair := pending.NewPair(buyPrice, sellPrice, quantity, buyPrice*quantity)
	pair.BuyOrderID = buyOrderID

	err := s.book.Add(ctx, pair)
	if err != nil {
		s.logger.Error("recovery-pair-not-recorded",
			zap.Int64("buy-order-id", buyOrderID),
			zap.Float64("sell-price", sellPrice),
			zap.Float64("quantity", quantity),
			zap.Error(err))
		return
	}

	RecoveryPairsTotal.Inc()
	s.logger.Warn("recovery-pair-recorded",
		zap.String("pair-id", pair.ID),
		zap.Int64("buy-order-id", buyOrderID),
		zap.Float64("sell-price", sellPrice),
		zap.Float64("quantity", quantity))
}

// acceptedBuy builds the book update for an accepted buy, preferring the
// price and quantity the exchange echoed back after rounding.
func acceptedBuy(order *types.Order, clientID string, price, quantity, invested float64) pending.BuyOrder {
	buy := pending.BuyOrder{
		OrderID:        order.ID,
		ClientOrderID:  clientID,
		Price:          price,
		Quantity:       quantity,
		InvestedAmount: invested,
	}
	if order.Price > 0 {
		buy.Price = order.Price
	}
	if order.Quantity > 0 {
		buy.Quantity = order.Quantity
	}
	return buy
}

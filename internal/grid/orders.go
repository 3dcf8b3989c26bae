package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
	"go.uber.org/zap"
)

// ErrOrderNotFound is returned when an order to cancel is not open on the exchange.
var ErrOrderNotFound = errors.New("open order not found")

// openOrderQtyTolerance is the relative quantity difference under which an
// open buy and an open sell are shown as one grid pair.
const openOrderQtyTolerance = 0.01

// OrderPair is an open buy and an open sell of about the same quantity,
// valued as if both filled.
type OrderPair struct {
	Buy           types.Order `json:"buy_order"`
	Sell          types.Order `json:"sell_order"`
	Profit        float64     `json:"profit"`
	ProfitPercent float64     `json:"profit_percent"`
}

func newOrderPair(buy, sell types.Order) OrderPair {
	p := OrderPair{
		Buy:    buy,
		Sell:   sell,
		Profit: (sell.Price - buy.Price) * buy.Quantity,
	}
	if buy.Price > 0 {
		p.ProfitPercent = (sell.Price - buy.Price) / buy.Price * 100
	}
	return p
}

// OpenOrders is the raw open order list plus its split into grid pairs and
// orders without a counterpart.
type OpenOrders struct {
	Orders   []types.Order `json:"orders"`
	Pairs    []OrderPair   `json:"grid_pairs"`
	Unpaired []types.Order `json:"unpaired_orders"`
	Total    int           `json:"total_orders"`
}

// PairOpenOrders pairs each open buy with the first unpaired open sell whose
// quantity is within 1% of it. Orders are taken in the given order.
func PairOpenOrders(orders []types.Order) ([]OrderPair, []types.Order) {
	pairs := make([]OrderPair, 0)
	matched := make(map[int64]bool)

	for i := range orders {
		buy := orders[i]
		if !buy.IsBuy() || buy.Quantity <= 0 {
			continue
		}
		for j := range orders {
			sell := orders[j]
			if sell.IsBuy() || matched[sell.ID] {
				continue
			}
			if math.Abs(buy.Quantity-sell.Quantity)/buy.Quantity < openOrderQtyTolerance {
				pairs = append(pairs, newOrderPair(buy, sell))
				matched[buy.ID] = true
				matched[sell.ID] = true
				break
			}
		}
	}

	unpaired := make([]types.Order, 0)
	for _, o := range orders {
		if !matched[o.ID] {
			unpaired = append(unpaired, o)
		}
	}
	return pairs, unpaired
}

// GetOpenOrders returns every open order of the symbol, also grouped into
// buy/sell pairs of matching quantity.
func (s *Service) GetOpenOrders(ctx context.Context) (*OpenOrders, error) {
	orders, err := s.exchange.GetOpenOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if orders == nil {
		orders = []types.Order{}
	}

	pairs, unpaired := PairOpenOrders(orders)
	return &OpenOrders{
		Orders:   orders,
		Pairs:    pairs,
		Unpaired: unpaired,
		Total:    len(orders),
	}, nil
}

// CancelOrder cancels a single open order by id. The buy of a pending pair is
// refused since the pair would be left waiting for a fill that never comes;
// CancelPair removes both.
func (s *Service) CancelOrder(ctx context.Context, orderID int64) (o *types.Order, err error) {
	start := time.Now()
	defer func() { observe("cancel-order", start, err) }()

	if orderID <= 0 {
		return nil, fmt.Errorf("%w: order id must be positive", ErrInvalidInput)
	}

	s.book.Lock()
	defer s.book.Unlock()

	if p, ok := s.book.FindByBuyOrderID(orderID); ok {
		return nil, fmt.Errorf("%w: order %d is the buy of pending pair %s, cancel the pair instead",
			ErrInvalidInput, orderID, p.ID)
	}

	order, err := s.exchange.CancelOrder(ctx, orderID)
	if types.IsUnknownOrder(err) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("order-canceled",
		zap.Int64("order-id", order.ID),
		zap.String("side", string(order.Side)),
		zap.Float64("price", order.Price),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("executed-qty", order.ExecutedQty))

	return order, nil
}

package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
)

// Exchange operation names accepted by FailNext and recorded in Calls.
const (
	OpPlaceLimit   = "place-limit"
	OpPlaceMarket  = "place-market"
	OpCancel       = "cancel"
	OpQuery        = "query"
	OpOpenOrders   = "open-orders"
	OpTradeHistory = "trade-history"
	OpOrderTrades  = "order-trades"
	OpBalances     = "balances"
	OpTicker       = "ticker"
	OpKlines       = "klines"
)

// MockExchange is an in-memory exchange for a single symbol. Orders rest
// until a test fills them with Fill, except market orders which fill at
// the configured price immediately.
type MockExchange struct {
	mu          sync.Mutex
	symbol      string
	orders      map[int64]*types.Order
	trades      []types.Trade
	balances    types.Balances
	price       float64
	klines      []types.Kline
	nextOrderID int64
	nextTradeID int64
	failures    map[string][]error
	calls       []string
	clock       time.Time
}

// NewMockExchange creates an empty mock exchange.
func NewMockExchange(symbol string) *MockExchange {
	return &MockExchange{
		symbol:      symbol,
		orders:      make(map[int64]*types.Order),
		balances:    make(types.Balances),
		nextOrderID: 1000,
		nextTradeID: 5000,
		failures:    make(map[string][]error),
		clock:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailNext queues err to be returned by the next call of op.
func (m *MockExchange) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// SetPrice sets the ticker price and the market order fill price.
func (m *MockExchange) SetPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
}

// SetBalance sets the balance of one asset.
func (m *MockExchange) SetBalance(asset string, free, locked float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[asset] = types.Balance{Asset: asset, Free: free, Locked: locked}
}

// SetKlines sets the candles returned by GetKlines.
func (m *MockExchange) SetKlines(klines []types.Kline) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.klines = klines
}

// Calls returns the operations invoked so far, in order.
func (m *MockExchange) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (m *MockExchange) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == op {
			n++
		}
	}
	return n
}

// Order returns a copy of the order with the given id.
func (m *MockExchange) Order(id int64) (types.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return types.Order{}, false
	}
	return *o, true
}

// OrdersBySide returns all orders on one side ordered by id.
func (m *MockExchange) OrdersBySide(side types.Side) []types.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Order
	for _, o := range m.orders {
		if o.Side == side {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fill executes qty of an open order at its limit price and records a trade.
func (m *MockExchange) Fill(orderID int64, qty float64) types.Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fillLocked(m.orders[orderID], qty, m.orders[orderID].Price)
}

// Close moves an order to status without recording a trade. Closing with
// FILLED models fills that are not visible yet.
func (m *MockExchange) Close(orderID int64, status types.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].Status = status
}

// AddTrade appends a trade to the history as is.
func (m *MockExchange) AddTrade(t types.Trade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
}

// AddOrder stores an order as is.
func (m *MockExchange) AddOrder(o types.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := o
	m.orders[o.ID] = &cp
}

func (m *MockExchange) PlaceLimitOrder(
	_ context.Context,
	side types.Side,
	price, quantity float64,
	clientOrderID string,
) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpPlaceLimit)
	if err != nil {
		return nil, err
	}

	for _, o := range m.orders {
		if o.ClientOrderID == clientOrderID && o.Status.IsOpen() {
			return nil, &types.RejectionError{
				Op: OpPlaceLimit, Status: 400, Code: types.CodeNewOrderRejected, Message: "Duplicate order sent.",
			}
		}
	}

	o := m.newOrderLocked(side, types.OrderTypeLimit, price, quantity, clientOrderID)
	cp := *o
	return &cp, nil
}

func (m *MockExchange) PlaceMarketOrder(
	_ context.Context,
	side types.Side,
	quantity float64,
	clientOrderID string,
) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpPlaceMarket)
	if err != nil {
		return nil, err
	}

	o := m.newOrderLocked(side, types.OrderTypeMarket, m.price, quantity, clientOrderID)
	m.fillLocked(o, quantity, m.price)
	cp := *o
	return &cp, nil
}

func (m *MockExchange) CancelOrder(_ context.Context, orderID int64) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpCancel)
	if err != nil {
		return nil, err
	}

	o, ok := m.orders[orderID]
	if !ok || !o.Status.IsOpen() {
		return nil, unknownOrder(OpCancel, types.CodeCancelRejected)
	}
	o.Status = types.OrderStatusCanceled
	cp := *o
	return &cp, nil
}

func (m *MockExchange) QueryOrder(_ context.Context, ref types.OrderRef) (*types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpQuery)
	if err != nil {
		return nil, err
	}

	for _, o := range m.orders {
		if (ref.OrderID != 0 && o.ID == ref.OrderID) ||
			(ref.OrderID == 0 && ref.ClientOrderID != "" && o.ClientOrderID == ref.ClientOrderID) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, unknownOrder(OpQuery, types.CodeNoSuchOrder)
}

func (m *MockExchange) GetOpenOrders(_ context.Context) ([]types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpOpenOrders)
	if err != nil {
		return nil, err
	}

	var out []types.Order
	for _, o := range m.orders {
		if o.Status.IsOpen() {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockExchange) GetTradeHistory(_ context.Context, limit int) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpTradeHistory)
	if err != nil {
		return nil, err
	}

	out := make([]types.Trade, len(m.trades))
	copy(out, m.trades)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockExchange) GetOrderTrades(_ context.Context, orderID int64) ([]types.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpOrderTrades)
	if err != nil {
		return nil, err
	}

	var out []types.Trade
	for _, t := range m.trades {
		if t.OrderID == orderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MockExchange) GetBalances(_ context.Context) (types.Balances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpBalances)
	if err != nil {
		return nil, err
	}

	out := make(types.Balances, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out, nil
}

func (m *MockExchange) GetTickerPrice(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpTicker)
	if err != nil {
		return 0, err
	}
	return m.price, nil
}

func (m *MockExchange) GetKlines(_ context.Context, _ string, limit int) ([]types.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.begin(OpKlines)
	if err != nil {
		return nil, err
	}

	out := make([]types.Kline, len(m.klines))
	copy(out, m.klines)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// begin records the call and pops a queued failure, if any.
func (m *MockExchange) begin(op string) error {
	m.calls = append(m.calls, op)
	queued := m.failures[op]
	if len(queued) == 0 {
		return nil
	}
	m.failures[op] = queued[1:]
	return queued[0]
}

func (m *MockExchange) newOrderLocked(
	side types.Side,
	typ types.OrderType,
	price, quantity float64,
	clientOrderID string,
) *types.Order {
	m.nextOrderID++
	m.clock = m.clock.Add(time.Second)
	if clientOrderID == "" {
		clientOrderID = fmt.Sprintf("mock-%d", m.nextOrderID)
	}
	o := &types.Order{
		ID:            m.nextOrderID,
		ClientOrderID: clientOrderID,
		Symbol:        m.symbol,
		Side:          side,
		Type:          typ,
		Price:         price,
		Quantity:      quantity,
		Status:        types.OrderStatusNew,
		Time:          m.clock,
	}
	m.orders[o.ID] = o
	return o
}

func (m *MockExchange) fillLocked(o *types.Order, qty, price float64) types.Trade {
	m.nextTradeID++
	m.clock = m.clock.Add(time.Second)

	o.ExecutedQty += qty
	if o.ExecutedQty >= o.Quantity {
		o.Status = types.OrderStatusFilled
	} else {
		o.Status = types.OrderStatusPartiallyFilled
	}

	t := types.Trade{
		ID:       m.nextTradeID,
		OrderID:  o.ID,
		Symbol:   m.symbol,
		Price:    price,
		Quantity: qty,
		QuoteQty: price * qty,
		Time:     m.clock,
		IsBuyer:  o.Side == types.SideBuy,
	}
	m.trades = append(m.trades, t)
	return t
}

func unknownOrder(op string, code int) error {
	msg := "Order does not exist."
	if code == types.CodeCancelRejected {
		msg = "Unknown order sent."
	}
	return &types.RejectionError{Op: op, Status: 400, Code: code, Message: msg}
}

package types

import "time"

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the exchange order type.
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the exchange-side lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsOpen reports whether an order with this status can still fill.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatusNew || s == OrderStatusPartiallyFilled
}

// Order is a read-only snapshot of one exchange order.
// A snapshot is advisory: it goes stale as soon as it is fetched.
type Order struct {
	ID            int64       `json:"order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Price         float64     `json:"price"`
	Quantity      float64     `json:"quantity"`
	ExecutedQty   float64     `json:"executed_qty"`
	Status        OrderStatus `json:"status"`
	Time          time.Time   `json:"time"`
}

// IsBuy reports whether the order is on the BUY side.
func (o *Order) IsBuy() bool {
	return o.Side == SideBuy
}

// Notional returns price * quantity.
func (o *Order) Notional() float64 {
	return o.Price * o.Quantity
}

// OrderRef identifies an order either by exchange id or by client order id.
type OrderRef struct {
	OrderID       int64
	ClientOrderID string
}

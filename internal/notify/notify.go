// Package notify publishes order lifecycle events.
package notify

import (
	"context"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventBuyFilled     EventType = "buy-filled"
	EventSellPlaced    EventType = "sell-placed"
	EventPairCompleted EventType = "pair-completed"
	EventFillAmbiguous EventType = "fill-ambiguous"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType  `json:"type"`
	PairID    string     `json:"pair_id,omitempty"`
	OrderID   int64      `json:"order_id,omitempty"`
	Side      types.Side `json:"side,omitempty"`
	Price     float64    `json:"price,omitempty"`
	Quantity  float64    `json:"quantity,omitempty"`
	NetProfit float64    `json:"net_profit,omitempty"`
	Message   string     `json:"message,omitempty"`
	Time      time.Time  `json:"time"`
}

// Key is the partition key of the event: the pair id if known, else the order id.
func (e *Event) Key() string {
	if e.PairID != "" {
		return e.PairID
	}
	return "order-" + formatID(e.OrderID)
}

// Notifier delivers events. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}

package pending

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pair is a grid pair whose buy order has been submitted but whose sell order
// has not been placed yet.
type Pair struct {
	ID               string    `json:"id"`
	BuyOrderID       int64     `json:"buy_order_id"`
	BuyClientOrderID string    `json:"buy_client_order_id"`
	BuyPrice         float64   `json:"buy_price"`
	SellPrice        float64   `json:"sell_price"`
	Quantity         float64   `json:"quantity"`
	InvestedAmount   float64   `json:"invested_amount"`
	CreatedAt        time.Time `json:"created_at"`
}

// BuyOrder describes the exchange order currently backing a pair's buy leg.
// A zero InvestedAmount leaves the pair's invested amount unchanged.
type BuyOrder struct {
	OrderID        int64
	ClientOrderID  string
	Price          float64
	Quantity       float64
	InvestedAmount float64
}

// NewPair builds a pair with a fresh id and buy client order id. The buy
// order id stays 0 until the order is accepted by the exchange.
func NewPair(buyPrice, sellPrice, quantity, invested float64) Pair {
	return Pair{
		ID:               uuid.NewString(),
		BuyClientOrderID: NewClientOrderID(BuyClientOrderPrefix),
		BuyPrice:         buyPrice,
		SellPrice:        sellPrice,
		Quantity:         quantity,
		InvestedAmount:   invested,
		CreatedAt:        time.Now().UTC(),
	}
}

// Client order id prefixes. Binance caps client order ids at 36 characters.
const (
	BuyClientOrderPrefix  = "gb-"
	SellClientOrderPrefix = "gs-"
)

// NewClientOrderID returns prefix followed by 32 random hex characters.
func NewClientOrderID(prefix string) string {
	return prefix + compactUUID(uuid.NewString())
}

// SellClientOrderID is the deterministic client order id of the sell that
// promotes this pair. Placing it twice is rejected by the exchange as a
// duplicate while the first one is open.
func (p *Pair) SellClientOrderID() string {
	return SellClientOrderPrefix + compactUUID(p.ID)
}

// HasBuyOrder reports whether the exchange order id of the buy leg is known.
func (p *Pair) HasBuyOrder() bool {
	return p.BuyOrderID != 0
}

func compactUUID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

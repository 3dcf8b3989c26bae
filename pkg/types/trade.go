package types

import "time"

// Trade is one executed fill. Trades are created by the exchange only
// and are immutable.
type Trade struct {
	ID              int64     `json:"trade_id"`
	OrderID         int64     `json:"order_id"`
	Symbol          string    `json:"symbol"`
	Price           float64   `json:"price"`
	Quantity        float64   `json:"quantity"`
	QuoteQty        float64   `json:"quote_qty"`
	Commission      float64   `json:"commission"`
	CommissionAsset string    `json:"commission_asset"`
	Time            time.Time `json:"time"`
	IsBuyer         bool      `json:"is_buyer"`
	IsMaker         bool      `json:"is_maker"`
}

// Side derives the trade side from the buyer flag.
func (t *Trade) Side() Side {
	if t.IsBuyer {
		return SideBuy
	}
	return SideSell
}

// Notional returns price * quantity.
func (t *Trade) Notional() float64 {
	return t.Price * t.Quantity
}

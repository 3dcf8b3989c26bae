package profit

import "github.com/mselser95/gridbot/pkg/types"

// FeeModel converts commissions charged on fills into quote currency.
type FeeModel struct {
	BaseAsset  string
	QuoteAsset string
	FeeRate    float64
}

// TradeCommissionInQuote returns the fee of t expressed in quote currency.
// A quote-denominated fee is taken as is and a base-denominated fee is valued
// at the trade price. Any other fee asset (e.g. BNB discounts) has no price
// here, so the fee-rate model is applied to the trade notional instead.
func (m FeeModel) TradeCommissionInQuote(t *types.Trade) float64 {
	switch t.CommissionAsset {
	case m.QuoteAsset:
		return t.Commission
	case m.BaseAsset:
		return t.Commission * t.Price
	default:
		return Commission(t.Notional(), m.FeeRate)
	}
}

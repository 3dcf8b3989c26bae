package types

import "time"

// Balance is the free and locked amount of one asset.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Total returns free + locked.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}

// Balances maps asset symbol to balance.
type Balances map[string]Balance

// Get returns the balance for asset, or a zero balance if the account holds none.
func (b Balances) Get(asset string) Balance {
	bal, ok := b[asset]
	if !ok {
		return Balance{Asset: asset}
	}
	return bal
}

// AccountBalance is the valued balance of the traded pair.
type AccountBalance struct {
	Base       Balance `json:"base"`
	Quote      Balance `json:"quote"`
	Price      float64 `json:"price"`
	BaseValue  float64 `json:"base_value"`
	TotalValue float64 `json:"total_value"`
}

// NewAccountBalance values the base asset at price and sums both sides in quote currency.
func NewAccountBalance(balances Balances, baseAsset, quoteAsset string, price float64) *AccountBalance {
	base := balances.Get(baseAsset)
	quote := balances.Get(quoteAsset)
	baseValue := base.Total() * price

	return &AccountBalance{
		Base:       base,
		Quote:      quote,
		Price:      price,
		BaseValue:  baseValue,
		TotalValue: quote.Total() + baseValue,
	}
}

// Kline is one candlestick.
type Kline struct {
	OpenTime  time.Time `json:"open_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CloseTime time.Time `json:"close_time"`
}

// SymbolFilters holds the exchange trading rules for one symbol.
type SymbolFilters struct {
	Symbol      string  `json:"symbol"`
	TickSize    float64 `json:"tick_size"`
	StepSize    float64 `json:"step_size"`
	MinQty      float64 `json:"min_qty"`
	MinNotional float64 `json:"min_notional"`
}

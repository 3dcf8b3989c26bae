// Package profit holds the fee model and the profit math for grid round-trips.
// Everything here is pure and deterministic.
package profit

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when a price, quantity or fee rate is out of range.
var ErrInvalidInput = errors.New("invalid input")

// Breakdown is the full profit picture of one buy/sell round-trip.
type Breakdown struct {
	BuyPrice       float64 `json:"buy_price"`
	SellPrice      float64 `json:"sell_price"`
	Quantity       float64 `json:"quantity"`
	InvestedAmount float64 `json:"invested_amount"`
	GrossProfit    float64 `json:"gross_profit"`
	BuyCommission  float64 `json:"buy_commission"`
	SellCommission float64 `json:"sell_commission"`
	NetProfit      float64 `json:"net_profit"`
	ProfitPercent  float64 `json:"profit_percent"`
}

// TotalCommission returns buy + sell commission.
func (b Breakdown) TotalCommission() float64 {
	return b.BuyCommission + b.SellCommission
}

// GrossProfit returns (sellPrice - buyPrice) * quantity.
func GrossProfit(buyPrice, sellPrice, quantity float64) float64 {
	return (sellPrice - buyPrice) * quantity
}

// Commission returns notional * feeRate.
func Commission(notional, feeRate float64) float64 {
	return notional * feeRate
}

// NetProfit returns gross profit minus one commission on each leg.
func NetProfit(buyPrice, sellPrice, quantity, feeRate float64) float64 {
	gross := GrossProfit(buyPrice, sellPrice, quantity)
	return gross - Commission(buyPrice*quantity, feeRate) - Commission(sellPrice*quantity, feeRate)
}

// Percentage returns net / invested * 100, or 0 when invested is not positive.
func Percentage(net, invested float64) float64 {
	if invested <= 0 {
		return 0
	}
	return net / invested * 100
}

// Calculate computes the breakdown for a round-trip of quantity bought at
// buyPrice and sold at sellPrice.
func Calculate(buyPrice, sellPrice, quantity, feeRate float64) (Breakdown, error) {
	if buyPrice <= 0 {
		return Breakdown{}, fmt.Errorf("buy price must be positive, got %v: %w", buyPrice, ErrInvalidInput)
	}
	if sellPrice < 0 {
		return Breakdown{}, fmt.Errorf("sell price cannot be negative, got %v: %w", sellPrice, ErrInvalidInput)
	}
	if quantity <= 0 {
		return Breakdown{}, fmt.Errorf("quantity must be positive, got %v: %w", quantity, ErrInvalidInput)
	}
	if feeRate < 0 {
		return Breakdown{}, fmt.Errorf("fee rate cannot be negative, got %v: %w", feeRate, ErrInvalidInput)
	}

	invested := buyPrice * quantity
	b := Breakdown{
		BuyPrice:       buyPrice,
		SellPrice:      sellPrice,
		Quantity:       quantity,
		InvestedAmount: invested,
		GrossProfit:    GrossProfit(buyPrice, sellPrice, quantity),
		BuyCommission:  Commission(invested, feeRate),
		SellCommission: Commission(sellPrice*quantity, feeRate),
	}
	b.NetProfit = b.GrossProfit - b.BuyCommission - b.SellCommission
	b.ProfitPercent = Percentage(b.NetProfit, invested)

	return b, nil
}

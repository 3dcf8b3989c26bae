package exchange

import (
	"strconv"

	"github.com/mselser95/gridbot/pkg/types"
	"github.com/shopspring/decimal"
)

// roundToStep rounds v down to a multiple of step and formats it without
// exponent. A non-positive step leaves v untouched.
func roundToStep(v, step float64) string {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d.String()
	}

	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s).String()
}

// FormatPrice rounds price down to the symbol tick size.
func FormatPrice(price float64, f *types.SymbolFilters) string {
	if f == nil {
		return strconv.FormatFloat(price, 'f', -1, 64)
	}
	return roundToStep(price, f.TickSize)
}

// FormatQuantity rounds qty down to the symbol lot step.
func FormatQuantity(qty float64, f *types.SymbolFilters) string {
	if f == nil {
		return strconv.FormatFloat(qty, 'f', -1, 64)
	}
	return roundToStep(qty, f.StepSize)
}

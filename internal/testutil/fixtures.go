package testutil

import (
	"strconv"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
)

// BaseTime is the reference instant used by fixtures.
var BaseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) //nolint:gochecknoglobals // test fixture

// BuyTrade creates a buyer-side trade at BaseTime plus offset.
func BuyTrade(id, orderID int64, price, qty float64, offset time.Duration) types.Trade {
	return types.Trade{
		ID:       id,
		OrderID:  orderID,
		Symbol:   "BTCUSDT",
		Price:    price,
		Quantity: qty,
		QuoteQty: price * qty,
		Time:     BaseTime.Add(offset),
		IsBuyer:  true,
	}
}

// SellTrade creates a seller-side trade at BaseTime plus offset.
func SellTrade(id, orderID int64, price, qty float64, offset time.Duration) types.Trade {
	t := BuyTrade(id, orderID, price, qty, offset)
	t.IsBuyer = false
	return t
}

// OpenSell creates an open limit SELL order submitted at BaseTime plus offset.
func OpenSell(id int64, price, qty float64, offset time.Duration) types.Order {
	return types.Order{
		ID:            id,
		ClientOrderID: "sell-" + strconv.FormatInt(id, 10),
		Symbol:        "BTCUSDT",
		Side:          types.SideSell,
		Type:          types.OrderTypeLimit,
		Price:         price,
		Quantity:      qty,
		Status:        types.OrderStatusNew,
		Time:          BaseTime.Add(offset),
	}
}

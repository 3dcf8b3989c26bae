package exchange

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mselser95/gridbot/pkg/types"
)

type wireOrder struct {
	Symbol            string  `json:"symbol"`
	OrderID           int64   `json:"orderId"`
	ClientOrderID     string  `json:"clientOrderId"`
	OrigClientOrderID string  `json:"origClientOrderId"`
	Price             float64 `json:"price,string"`
	OrigQty           float64 `json:"origQty,string"`
	ExecutedQty       float64 `json:"executedQty,string"`
	Status            string  `json:"status"`
	Type              string  `json:"type"`
	Side              string  `json:"side"`
	Time              int64   `json:"time"`
	TransactTime      int64   `json:"transactTime"`
}

func (w *wireOrder) toOrder() types.Order {
	clientID := w.ClientOrderID
	if w.OrigClientOrderID != "" {
		// Cancel responses carry the cancel request's own id in clientOrderId.
		clientID = w.OrigClientOrderID
	}

	ts := w.Time
	if ts == 0 {
		ts = w.TransactTime
	}

	return types.Order{
		ID:            w.OrderID,
		ClientOrderID: clientID,
		Symbol:        w.Symbol,
		Side:          types.Side(w.Side),
		Type:          types.OrderType(w.Type),
		Price:         w.Price,
		Quantity:      w.OrigQty,
		ExecutedQty:   w.ExecutedQty,
		Status:        types.OrderStatus(w.Status),
		Time:          time.UnixMilli(ts).UTC(),
	}
}

type wireTrade struct {
	Symbol          string  `json:"symbol"`
	ID              int64   `json:"id"`
	OrderID         int64   `json:"orderId"`
	Price           float64 `json:"price,string"`
	Qty             float64 `json:"qty,string"`
	QuoteQty        float64 `json:"quoteQty,string"`
	Commission      float64 `json:"commission,string"`
	CommissionAsset string  `json:"commissionAsset"`
	Time            int64   `json:"time"`
	IsBuyer         bool    `json:"isBuyer"`
	IsMaker         bool    `json:"isMaker"`
}

func (w *wireTrade) toTrade() types.Trade {
	return types.Trade{
		ID:              w.ID,
		OrderID:         w.OrderID,
		Symbol:          w.Symbol,
		Price:           w.Price,
		Quantity:        w.Qty,
		QuoteQty:        w.QuoteQty,
		Commission:      w.Commission,
		CommissionAsset: w.CommissionAsset,
		Time:            time.UnixMilli(w.Time).UTC(),
		IsBuyer:         w.IsBuyer,
		IsMaker:         w.IsMaker,
	}
}

type wireAccount struct {
	Balances []struct {
		Asset  string  `json:"asset"`
		Free   float64 `json:"free,string"`
		Locked float64 `json:"locked,string"`
	} `json:"balances"`
}

type wireTicker struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price,string"`
}

type wireExchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType  string `json:"filterType"`
			TickSize    string `json:"tickSize"`
			StepSize    string `json:"stepSize"`
			MinQty      string `json:"minQty"`
			MinNotional string `json:"minNotional"`
		} `json:"filters"`
	} `json:"symbols"`
}

func (w *wireExchangeInfo) filtersFor(symbol string) (*types.SymbolFilters, error) {
	for _, s := range w.Symbols {
		if s.Symbol != symbol {
			continue
		}

		f := &types.SymbolFilters{Symbol: symbol}
		for _, filter := range s.Filters {
			switch filter.FilterType {
			case "PRICE_FILTER":
				f.TickSize = parseFloatOrZero(filter.TickSize)
			case "LOT_SIZE":
				f.StepSize = parseFloatOrZero(filter.StepSize)
				f.MinQty = parseFloatOrZero(filter.MinQty)
			case "NOTIONAL", "MIN_NOTIONAL":
				f.MinNotional = parseFloatOrZero(filter.MinNotional)
			}
		}
		return f, nil
	}

	return nil, fmt.Errorf("symbol %s not found in exchange info", symbol)
}

// parseKline decodes one kline row:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(row []interface{}) (types.Kline, error) {
	if len(row) < 7 {
		return types.Kline{}, fmt.Errorf("kline row has %d fields", len(row))
	}

	openTime, ok := row[0].(float64)
	if !ok {
		return types.Kline{}, fmt.Errorf("kline open time is %T", row[0])
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return types.Kline{}, fmt.Errorf("kline close time is %T", row[6])
	}

	values := make([]float64, 5)
	for i := range values {
		s, isString := row[i+1].(string)
		if !isString {
			return types.Kline{}, fmt.Errorf("kline field %d is %T", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Kline{}, fmt.Errorf("parse kline field %d: %w", i+1, err)
		}
		values[i] = v
	}

	return types.Kline{
		OpenTime:  time.UnixMilli(int64(openTime)).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
		CloseTime: time.UnixMilli(int64(closeTime)).UTC(),
	}, nil
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

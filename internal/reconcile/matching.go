package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
)

// DefaultTolerance is the relative quantity difference below which a buy and
// a sell are considered the same position.
const DefaultTolerance = 0.05

// OpenPosition is a filled buy trade matched to a still-open sell order.
type OpenPosition struct {
	BuyTradeID        int64            `json:"buy_trade_id"`
	BuyOrderID        int64            `json:"buy_order_id"`
	SellOrderID       int64            `json:"sell_order_id"`
	SellClientOrderID string           `json:"sell_client_order_id"`
	BuyPrice          float64          `json:"buy_price"`
	SellPrice         float64          `json:"sell_price"`
	Quantity          float64          `json:"quantity"`
	BuyTime           time.Time        `json:"buy_time"`
	Expected          profit.Breakdown `json:"expected"`
}

// CompletedPair is a filled buy trade matched to a later, higher-priced sell trade.
type CompletedPair struct {
	BuyTradeID     int64     `json:"buy_trade_id"`
	SellTradeID    int64     `json:"sell_trade_id"`
	BuyOrderID     int64     `json:"buy_order_id"`
	SellOrderID    int64     `json:"sell_order_id"`
	BuyPrice       float64   `json:"buy_price"`
	SellPrice      float64   `json:"sell_price"`
	Quantity       float64   `json:"quantity"`
	BuyTime        time.Time `json:"buy_time"`
	SellTime       time.Time `json:"sell_time"`
	GrossProfit    float64   `json:"gross_profit"`
	BuyCommission  float64   `json:"buy_commission"`
	SellCommission float64   `json:"sell_commission"`
	NetProfit      float64   `json:"net_profit"`
	ProfitPercent  float64   `json:"profit_percent"`
}

// Commission returns the total fee of both legs in quote currency.
func (c *CompletedPair) Commission() float64 {
	return c.BuyCommission + c.SellCommission
}

// Breakdown converts the pair to a profit breakdown using its actual fees.
func (c *CompletedPair) Breakdown() profit.Breakdown {
	return profit.Breakdown{
		BuyPrice:       c.BuyPrice,
		SellPrice:      c.SellPrice,
		Quantity:       c.Quantity,
		InvestedAmount: c.BuyPrice * c.Quantity,
		GrossProfit:    c.GrossProfit,
		BuyCommission:  c.BuyCommission,
		SellCommission: c.SellCommission,
		NetProfit:      c.NetProfit,
		ProfitPercent:  c.ProfitPercent,
	}
}

// MatchConfig parameterises the matcher.
type MatchConfig struct {
	Tolerance float64
	Fees      profit.FeeModel
}

// MatchResult holds the derived views of one matching run.
type MatchResult struct {
	Completed []CompletedPair
	Positions []OpenPosition
}

// Match derives completed pairs and open positions from trade history and
// open orders. Completed pairs are matched first, so a buy trade with a
// realized sell is never also reported as an open position.
//
// Matching is greedy: each sell takes the earliest eligible buy and each
// leftover buy takes the first eligible open sell in scan order. It is
// deterministic but not a globally optimal assignment.
func Match(trades []types.Trade, openOrders []types.Order, cfg MatchConfig) MatchResult {
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	buys, sells := partitionTrades(trades)
	completed, consumed := matchCompleted(buys, sells, tolerance, cfg.Fees)

	remaining := make([]types.Trade, 0, len(buys))
	for _, b := range buys {
		if !consumed[b.ID] {
			remaining = append(remaining, b)
		}
	}

	positions := matchOpen(remaining, openSells(openOrders), tolerance, cfg.Fees.FeeRate)

	return MatchResult{Completed: completed, Positions: positions}
}

func matchCompleted(
	buys, sells []types.Trade,
	tolerance float64,
	fees profit.FeeModel,
) ([]CompletedPair, map[int64]bool) {
	consumed := make(map[int64]bool, len(buys))
	var completed []CompletedPair

	for i := range sells {
		sell := &sells[i]
		for j := range buys {
			buy := &buys[j]
			if consumed[buy.ID] || !buy.Time.Before(sell.Time) {
				continue
			}
			if !withinTolerance(buy.Quantity, sell.Quantity, tolerance) {
				continue
			}

			consumed[buy.ID] = true
			if sell.Price > buy.Price {
				completed = append(completed, newCompletedPair(buy, sell, fees))
			}
			break
		}
	}

	// Newest first.
	sort.SliceStable(completed, func(i, j int) bool {
		if completed[i].SellTime.Equal(completed[j].SellTime) {
			return completed[i].SellTradeID > completed[j].SellTradeID
		}
		return completed[i].SellTime.After(completed[j].SellTime)
	})

	return completed, consumed
}

func newCompletedPair(buy, sell *types.Trade, fees profit.FeeModel) CompletedPair {
	qty := math.Min(buy.Quantity, sell.Quantity)
	gross := profit.GrossProfit(buy.Price, sell.Price, qty)
	buyFee := fees.TradeCommissionInQuote(buy)
	sellFee := fees.TradeCommissionInQuote(sell)
	net := gross - buyFee - sellFee

	return CompletedPair{
		BuyTradeID:     buy.ID,
		SellTradeID:    sell.ID,
		BuyOrderID:     buy.OrderID,
		SellOrderID:    sell.OrderID,
		BuyPrice:       buy.Price,
		SellPrice:      sell.Price,
		Quantity:       qty,
		BuyTime:        buy.Time,
		SellTime:       sell.Time,
		GrossProfit:    gross,
		BuyCommission:  buyFee,
		SellCommission: sellFee,
		NetProfit:      net,
		ProfitPercent:  profit.Percentage(net, buy.Price*qty),
	}
}

func matchOpen(buys []types.Trade, sells []types.Order, tolerance, feeRate float64) []OpenPosition {
	used := make([]bool, len(sells))
	var positions []OpenPosition

	for i := range buys {
		buy := &buys[i]
		for j := range sells {
			if used[j] || !withinTolerance(buy.Quantity, sells[j].Quantity, tolerance) {
				continue
			}
			used[j] = true

			sell := &sells[j]
			expected, err := profit.Calculate(buy.Price, sell.Price, sell.Quantity, feeRate)
			if err != nil {
				expected = profit.Breakdown{}
			}
			positions = append(positions, OpenPosition{
				BuyTradeID:        buy.ID,
				BuyOrderID:        buy.OrderID,
				SellOrderID:       sell.ID,
				SellClientOrderID: sell.ClientOrderID,
				BuyPrice:          buy.Price,
				SellPrice:         sell.Price,
				Quantity:          sell.Quantity,
				BuyTime:           buy.Time,
				Expected:          expected,
			})
			break
		}
	}

	return positions
}

// withinTolerance reports |ref-other|/ref < tolerance for a positive ref.
func withinTolerance(ref, other, tolerance float64) bool {
	if ref <= 0 {
		return false
	}
	return math.Abs(ref-other)/ref < tolerance
}

// partitionTrades splits trades into buys and sells, each ordered by time
// and then by trade id.
func partitionTrades(trades []types.Trade) (buys, sells []types.Trade) {
	for _, t := range trades {
		if t.IsBuyer {
			buys = append(buys, t)
		} else {
			sells = append(sells, t)
		}
	}
	sortTrades(buys)
	sortTrades(sells)
	return buys, sells
}

func sortTrades(trades []types.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].Time.Equal(trades[j].Time) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].Time.Before(trades[j].Time)
	})
}

// openSells returns the open SELL orders ordered by submission time, then id.
func openSells(orders []types.Order) []types.Order {
	sells := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if o.Side == types.SideSell {
			sells = append(sells, o)
		}
	}
	sort.SliceStable(sells, func(i, j int) bool {
		if sells[i].Time.Equal(sells[j].Time) {
			return sells[i].ID < sells[j].ID
		}
		return sells[i].Time.Before(sells[j].Time)
	})
	return sells
}

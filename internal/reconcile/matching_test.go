package reconcile

import (
	"testing"
	"time"

	"github.com/mselser95/gridbot/internal/testutil"
	"github.com/mselser95/gridbot/pkg/profit"
	"github.com/mselser95/gridbot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMatch = MatchConfig{ //nolint:gochecknoglobals // test fixture
	Tolerance: DefaultTolerance,
	Fees:      profit.FeeModel{BaseAsset: "BTC", QuoteAsset: "USDT", FeeRate: 0.001},
}

func TestMatch_CompletedWithinTolerance(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
		testutil.SellTrade(2, 11, 96000, 0.0201, 200*time.Second),
	}

	result := Match(trades, nil, testMatch)

	require.Len(t, result.Completed, 1)
	assert.Empty(t, result.Positions)

	c := result.Completed[0]
	assert.Equal(t, int64(1), c.BuyTradeID)
	assert.Equal(t, int64(2), c.SellTradeID)
	assert.InDelta(t, 0.02, c.Quantity, 1e-12)
	assert.InDelta(t, 40.0, c.GrossProfit, 1e-9)
	// No commission reported on the trades, so the fee rate applies.
	assert.InDelta(t, 94000*0.02*0.001, c.BuyCommission, 1e-9)
	assert.InDelta(t, 96000*0.0201*0.001, c.SellCommission, 1e-9)
	assert.InDelta(t, c.GrossProfit-c.Commission(), c.NetProfit, 1e-9)
}

func TestMatch_OpenSellOutsideTolerance(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(20, 96000, 0.05, 150*time.Second),
	}

	result := Match(trades, open, testMatch)

	assert.Empty(t, result.Completed)
	assert.Empty(t, result.Positions)
}

func TestMatch_OpenPosition(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.01, 100*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(20, 96000, 0.01, 150*time.Second),
	}

	result := Match(trades, open, testMatch)

	require.Len(t, result.Positions, 1)
	p := result.Positions[0]
	assert.Equal(t, int64(1), p.BuyTradeID)
	assert.Equal(t, int64(20), p.SellOrderID)
	assert.InDelta(t, 18.10, p.Expected.NetProfit, 1e-9)
}

func TestMatch_SellBeforeBuyIsNotCompleted(t *testing.T) {
	trades := []types.Trade{
		testutil.SellTrade(2, 11, 96000, 0.02, 100*time.Second),
		testutil.BuyTrade(1, 10, 94000, 0.02, 200*time.Second),
	}

	result := Match(trades, nil, testMatch)

	assert.Empty(t, result.Completed)
}

func TestMatch_SameTimestampIsNotCompleted(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
		testutil.SellTrade(2, 11, 96000, 0.02, 100*time.Second),
	}

	result := Match(trades, nil, testMatch)

	assert.Empty(t, result.Completed)
}

func TestMatch_LosingSellConsumesBuy(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 96000, 0.02, 100*time.Second),
		testutil.SellTrade(2, 11, 94000, 0.02, 200*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(20, 97000, 0.02, 300*time.Second),
	}

	result := Match(trades, open, testMatch)

	assert.Empty(t, result.Completed)
	assert.Empty(t, result.Positions, "a buy closed at a loss is not an open position")
}

func TestMatch_BuyNeverInBothViews(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
		testutil.BuyTrade(3, 12, 93000, 0.02, 150*time.Second),
		testutil.SellTrade(2, 11, 96000, 0.02, 200*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(20, 95000, 0.02, 250*time.Second),
		testutil.OpenSell(21, 95500, 0.02, 260*time.Second),
	}

	result := Match(trades, open, testMatch)

	require.Len(t, result.Completed, 1)
	assert.Equal(t, int64(1), result.Completed[0].BuyTradeID, "earliest buy is taken first")

	require.Len(t, result.Positions, 1)
	assert.Equal(t, int64(3), result.Positions[0].BuyTradeID)
	assert.Equal(t, int64(20), result.Positions[0].SellOrderID, "first open sell in time order")

	seen := map[int64]int{}
	for _, c := range result.Completed {
		seen[c.BuyTradeID]++
	}
	for _, p := range result.Positions {
		seen[p.BuyTradeID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "buy trade %d", id)
	}
}

func TestMatch_EachSellUsedOnce(t *testing.T) {
	trades := []types.Trade{
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
		testutil.BuyTrade(2, 11, 94100, 0.02, 110*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(20, 96000, 0.02, 150*time.Second),
	}

	result := Match(trades, open, testMatch)

	require.Len(t, result.Positions, 1)
	assert.Equal(t, int64(1), result.Positions[0].BuyTradeID)
}

func TestMatch_Deterministic(t *testing.T) {
	trades := []types.Trade{
		testutil.SellTrade(6, 16, 97000, 0.03, 500*time.Second),
		testutil.BuyTrade(1, 10, 94000, 0.02, 100*time.Second),
		testutil.SellTrade(4, 14, 96000, 0.02, 300*time.Second),
		testutil.BuyTrade(3, 12, 95000, 0.03, 200*time.Second),
		testutil.BuyTrade(5, 15, 95500, 0.02, 400*time.Second),
	}
	open := []types.Order{
		testutil.OpenSell(21, 97500, 0.02, 450*time.Second),
		testutil.OpenSell(20, 97000, 0.02, 450*time.Second),
	}

	first := Match(trades, open, testMatch)

	reversed := make([]types.Trade, len(trades))
	for i := range trades {
		reversed[len(trades)-1-i] = trades[i]
	}
	second := Match(reversed, []types.Order{open[1], open[0]}, testMatch)

	assert.Equal(t, first, second)

	require.Len(t, first.Completed, 2)
	assert.Equal(t, int64(6), first.Completed[0].SellTradeID, "newest first")
	assert.Equal(t, int64(4), first.Completed[1].SellTradeID)

	require.Len(t, first.Positions, 1)
	assert.Equal(t, int64(5), first.Positions[0].BuyTradeID)
	assert.Equal(t, int64(20), first.Positions[0].SellOrderID, "ties broken by order id")
}

func TestMatch_CommissionFromTrades(t *testing.T) {
	buy := testutil.BuyTrade(1, 10, 100, 1, 100*time.Second)
	buy.Commission = 0.001
	buy.CommissionAsset = "BTC"
	sell := testutil.SellTrade(2, 11, 110, 1, 200*time.Second)
	sell.Commission = 0.11
	sell.CommissionAsset = "USDT"

	result := Match([]types.Trade{buy, sell}, nil, testMatch)

	require.Len(t, result.Completed, 1)
	c := result.Completed[0]
	assert.InDelta(t, 0.1, c.BuyCommission, 1e-12)
	assert.InDelta(t, 0.11, c.SellCommission, 1e-12)
	assert.InDelta(t, 10-0.21, c.NetProfit, 1e-9)
}

func TestWithinTolerance(t *testing.T) {
	tests := []struct {
		name  string
		ref   float64
		other float64
		want  bool
	}{
		{"equal", 0.02, 0.02, true},
		{"half percent", 0.02, 0.0201, true},
		{"just under", 1, 1.049, true},
		{"boundary excluded", 1, 1.05, false},
		{"far", 0.02, 0.05, false},
		{"zero reference", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withinTolerance(tt.ref, tt.other, DefaultTolerance))
		})
	}
}

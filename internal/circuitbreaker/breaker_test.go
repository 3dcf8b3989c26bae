package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mselser95/gridbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func validConfig(t *testing.T, fetcher BalanceFetcher) *Config {
	t.Helper()
	return &Config{
		CheckInterval:   time.Minute,
		TradeMultiplier: 3.0,
		MinAbsolute:     50.0,
		HysteresisRatio: 1.5,
		QuoteAsset:      "USDT",
		Fetcher:         fetcher,
		Logger:          zaptest.NewLogger(t),
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	ex := testutil.NewMockExchange("BTCUSDT")

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"valid-config", func(c *Config) {}, ""},
		{"nil-fetcher", func(c *Config) { c.Fetcher = nil }, "balance fetcher cannot be nil"},
		{"nil-logger", func(c *Config) { c.Logger = nil }, "logger cannot be nil"},
		{"empty-quote-asset", func(c *Config) { c.QuoteAsset = "" }, "quote asset cannot be empty"},
		{"zero-check-interval", func(c *Config) { c.CheckInterval = 0 }, "check interval must be positive"},
		{"zero-multiplier", func(c *Config) { c.TradeMultiplier = 0 }, "trade multiplier must be positive"},
		{"zero-min-absolute", func(c *Config) { c.MinAbsolute = 0 }, "min absolute must be positive"},
		{"hysteresis-below-one", func(c *Config) { c.HysteresisRatio = 0.9 }, "hysteresis ratio must be >= 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t, ex)
			tt.mutate(cfg)

			b, err := New(cfg)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.True(t, b.IsEnabled())
		})
	}

	_, err := New(nil)
	assert.EqualError(t, err, "config cannot be nil")
}

func TestRecordTrade_Thresholds(t *testing.T) {
	b, err := New(validConfig(t, testutil.NewMockExchange("BTCUSDT")))
	require.NoError(t, err)

	b.RecordTrade(10)
	st := b.GetStatus()
	assert.InDelta(t, 50, st.DisableThreshold, 1e-9, "minimum wins over 3 * 10")

	b.RecordTrade(30)
	st = b.GetStatus()
	assert.InDelta(t, 20, st.AvgTradeSize, 1e-9)
	assert.InDelta(t, 60, st.DisableThreshold, 1e-9)
	assert.InDelta(t, 90, st.EnableThreshold, 1e-9)
	assert.Equal(t, 2, st.RecentTradeCount)

	b.RecordTrade(-1)
	assert.Equal(t, 2, b.GetStatus().RecentTradeCount)
}

func TestRecordTrade_RollingWindow(t *testing.T) {
	b, err := New(validConfig(t, testutil.NewMockExchange("BTCUSDT")))
	require.NoError(t, err)

	for i := 0; i < recentWindow+5; i++ {
		b.RecordTrade(100)
	}
	assert.Equal(t, recentWindow, b.GetStatus().RecentTradeCount)
}

func TestCheckBalance_Hysteresis(t *testing.T) {
	ex := testutil.NewMockExchange("BTCUSDT")
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)
	ctx := context.Background()

	ex.SetBalance("USDT", 40, 500)
	require.NoError(t, b.CheckBalance(ctx))
	assert.False(t, b.IsEnabled(), "locked funds do not count")

	ex.SetBalance("USDT", 60, 0)
	require.NoError(t, b.CheckBalance(ctx))
	assert.False(t, b.IsEnabled(), "above disable but below enable threshold")

	ex.SetBalance("USDT", 75, 0)
	require.NoError(t, b.CheckBalance(ctx))
	assert.True(t, b.IsEnabled())
	assert.InDelta(t, 75, b.GetStatus().LastBalance, 1e-9)
}

func TestCheckBalance_FetchError(t *testing.T) {
	ex := testutil.NewMockExchange("BTCUSDT")
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	ex.FailNext(testutil.OpBalances, errors.New("unreachable"))
	err = b.CheckBalance(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "get balances")
	assert.True(t, b.IsEnabled(), "state unchanged on error")
}

func TestStart_ChecksImmediately(t *testing.T) {
	ex := testutil.NewMockExchange("BTCUSDT")
	ex.SetBalance("USDT", 1, 0)
	b, err := New(validConfig(t, ex))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	b.Start(ctx)
	assert.False(t, b.IsEnabled())

	cancel()
	b.Close()
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, EnvTestnet, cfg.TradingEnv)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.InDelta(t, 0.001, cfg.FeeRate, 1e-12)
	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 90*time.Second, cfg.ReadyMaxStaleness)
	assert.Equal(t, "pebble", cfg.StorageMode)
	assert.Equal(t, "log", cfg.NotifyMode)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "https://testnet.binance.vision", cfg.BaseURL())
	assert.Equal(t, "testnet", cfg.Namespace())
}

func TestLoadFromEnv_LiveEnvironment(t *testing.T) {
	t.Setenv("TRADING_ENV", "LIVE")
	t.Setenv("BINANCE_LIVE_API_KEY", "live-key")
	t.Setenv("BINANCE_LIVE_SECRET_KEY", "live-secret")
	t.Setenv("BINANCE_TESTNET_API_KEY", "test-key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvLive, cfg.TradingEnv)
	assert.Equal(t, "live", cfg.Namespace())
	assert.Equal(t, "https://api.binance.com", cfg.BaseURL())

	key, secret := cfg.Credentials()
	assert.Equal(t, "live-key", key)
	assert.Equal(t, "live-secret", secret)
	assert.NoError(t, cfg.RequireCredentials())
}

func TestRequireCredentials(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	err = cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BINANCE_TESTNET_API_KEY")
}

func TestLoadFromEnv_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("RECONCILE_INTERVAL", "soon")
	t.Setenv("MAX_RETRIES", "many")
	t.Setenv("GUARD_ENABLED", "maybe")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ReconcileInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.False(t, cfg.GuardEnabled)
}

func TestLoadFromEnv_KafkaBrokers(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errMsg string
	}{
		{"bad-log-format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"bad-trading-env", map[string]string{"TRADING_ENV": "paper"}, "TRADING_ENV"},
		{"symbol-mismatch", map[string]string{"SYMBOL": "ETHUSDT"}, "does not match"},
		{"negative-fee", map[string]string{"FEE_RATE": "-0.1"}, "FEE_RATE"},
		{"zero-interval", map[string]string{"RECONCILE_INTERVAL": "0s"}, "RECONCILE_INTERVAL"},
		{"tolerance-too-large", map[string]string{"MATCH_TOLERANCE": "1.5"}, "MATCH_TOLERANCE"},
		{"history-limit-too-large", map[string]string{"TRADE_HISTORY_LIMIT": "5000"}, "TRADE_HISTORY_LIMIT"},
		{"bad-storage", map[string]string{"STORAGE_MODE": "redis"}, "STORAGE_MODE"},
		{"bad-notify", map[string]string{"NOTIFY_MODE": "email"}, "NOTIFY_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{LogFormatJSON, LogFormatConsole} {
		logger, err := NewLogger(&Config{LogLevel: "debug", LogFormat: format, TradingEnv: EnvTestnet, Symbol: "BTCUSDT"})
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := NewLogger(&Config{LogLevel: "loud", LogFormat: LogFormatJSON})
	assert.Error(t, err)

	_, err = NewLogger(nil)
	assert.Error(t, err)
}

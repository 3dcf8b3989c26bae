package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Trading environments. Each one keeps its pending pairs in its own namespace.
const (
	EnvTestnet = "testnet"
	EnvLive    = "live"
)

// Pending pair storage backends.
const (
	StoragePebble   = "pebble"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Event notification sinks.
const (
	NotifyLog   = "log"
	NotifyKafka = "kafka"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel  string
	LogFormat string
	HTTPPort  string
	APIToken string

	// Exchange
	TradingEnv        string
	Symbol            string
	BaseAsset         string
	QuoteAsset        string
	BinanceTestnetURL string
	BinanceLiveURL    string
	TestnetAPIKey     string
	TestnetSecretKey  string
	LiveAPIKey        string
	LiveSecretKey     string
	FeeRate           float64

	// Exchange client
	RequestTimeout      time.Duration
	RecvWindow          time.Duration
	MaxRetries          int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	FilterCacheTTL      time.Duration
	PriceCacheTTL       time.Duration

	// Reconciliation
	ReconcileInterval  time.Duration
	TradeHistoryLimit  int
	MatchTolerance     float64
	AmbiguityWarnAfter int
	ReadyMaxStaleness  time.Duration

	// Balance guard
	GuardEnabled         bool
	GuardCheckInterval   time.Duration
	GuardTradeMultiplier float64
	GuardMinAbsolute     float64
	GuardHysteresisRatio float64

	// Storage
	StorageMode  string // "pebble", "postgres" or "memory"
	PebbleDir    string
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string

	// Notifications
	NotifyMode   string // "log" or "kafka"
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnvOrDefault("LOG_FORMAT", LogFormatJSON)),
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),
		APIToken:  os.Getenv("API_TOKEN"),

		TradingEnv:        strings.ToLower(getEnvOrDefault("TRADING_ENV", EnvTestnet)),
		Symbol:            strings.ToUpper(getEnvOrDefault("SYMBOL", "BTCUSDT")),
		BaseAsset:         strings.ToUpper(getEnvOrDefault("BASE_ASSET", "BTC")),
		QuoteAsset:        strings.ToUpper(getEnvOrDefault("QUOTE_ASSET", "USDT")),
		BinanceTestnetURL: getEnvOrDefault("BINANCE_TESTNET_URL", "https://testnet.binance.vision"),
		BinanceLiveURL:    getEnvOrDefault("BINANCE_LIVE_URL", "https://api.binance.com"),
		TestnetAPIKey:     os.Getenv("BINANCE_TESTNET_API_KEY"),
		TestnetSecretKey:  os.Getenv("BINANCE_TESTNET_SECRET_KEY"),
		LiveAPIKey:        os.Getenv("BINANCE_LIVE_API_KEY"),
		LiveSecretKey:     os.Getenv("BINANCE_LIVE_SECRET_KEY"),
		FeeRate:           getFloat64OrDefault("FEE_RATE", 0.001),

		RequestTimeout:      getDurationOrDefault("REQUEST_TIMEOUT", 20*time.Second),
		RecvWindow:          getDurationOrDefault("RECV_WINDOW", 5*time.Second),
		MaxRetries:          getIntOrDefault("MAX_RETRIES", 3),
		RetryInitialBackoff: getDurationOrDefault("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		RetryMaxBackoff:     getDurationOrDefault("RETRY_MAX_BACKOFF", 10*time.Second),
		FilterCacheTTL:      getDurationOrDefault("FILTER_CACHE_TTL", time.Hour),
		PriceCacheTTL:       getDurationOrDefault("PRICE_CACHE_TTL", 2*time.Second),

		ReconcileInterval:  getDurationOrDefault("RECONCILE_INTERVAL", 30*time.Second),
		TradeHistoryLimit:  getIntOrDefault("TRADE_HISTORY_LIMIT", 500),
		MatchTolerance:     getFloat64OrDefault("MATCH_TOLERANCE", 0.05),
		AmbiguityWarnAfter: getIntOrDefault("AMBIGUITY_WARN_AFTER", 5),
		ReadyMaxStaleness:  getDurationOrDefault("READY_MAX_STALENESS", 0),

		GuardEnabled:         getBoolOrDefault("GUARD_ENABLED", false),
		GuardCheckInterval:   getDurationOrDefault("GUARD_CHECK_INTERVAL", time.Minute),
		GuardTradeMultiplier: getFloat64OrDefault("GUARD_TRADE_MULTIPLIER", 3.0),
		GuardMinAbsolute:     getFloat64OrDefault("GUARD_MIN_ABSOLUTE", 10.0),
		GuardHysteresisRatio: getFloat64OrDefault("GUARD_HYSTERESIS_RATIO", 1.5),

		StorageMode:  getEnvOrDefault("STORAGE_MODE", StoragePebble),
		PebbleDir:    getEnvOrDefault("PEBBLE_DIR", "data/pending"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "gridbot"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "gridbot"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "gridbot"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),

		NotifyMode:   getEnvOrDefault("NOTIFY_MODE", NotifyLog),
		KafkaBrokers: splitList(getEnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   getEnvOrDefault("KAFKA_TOPIC", "gridbot-events"),
	}

	if cfg.ReadyMaxStaleness == 0 {
		cfg.ReadyMaxStaleness = 3 * cfg.ReconcileInterval
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.LogFormat)
	}

	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.TradingEnv != EnvTestnet && c.TradingEnv != EnvLive {
		return fmt.Errorf("TRADING_ENV must be 'testnet' or 'live', got %q", c.TradingEnv)
	}

	if c.Symbol == "" || c.BaseAsset == "" || c.QuoteAsset == "" {
		return fmt.Errorf("SYMBOL, BASE_ASSET and QUOTE_ASSET cannot be empty")
	}

	if c.Symbol != c.BaseAsset+c.QuoteAsset {
		return fmt.Errorf("SYMBOL %q does not match BASE_ASSET+QUOTE_ASSET %q", c.Symbol, c.BaseAsset+c.QuoteAsset)
	}

	if c.FeeRate < 0 || c.FeeRate >= 1.0 {
		return fmt.Errorf("FEE_RATE must be in [0, 1), got %f", c.FeeRate)
	}

	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %v", c.ReconcileInterval)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES cannot be negative, got %d", c.MaxRetries)
	}

	if c.MatchTolerance <= 0 || c.MatchTolerance >= 1.0 {
		return fmt.Errorf("MATCH_TOLERANCE must be between 0 and 1.0, got %f", c.MatchTolerance)
	}

	if c.TradeHistoryLimit <= 0 || c.TradeHistoryLimit > 1000 {
		return fmt.Errorf("TRADE_HISTORY_LIMIT must be between 1 and 1000, got %d", c.TradeHistoryLimit)
	}

	switch c.StorageMode {
	case StoragePebble, StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("STORAGE_MODE must be 'pebble', 'postgres' or 'memory', got %q", c.StorageMode)
	}

	switch c.NotifyMode {
	case NotifyLog:
	case NotifyKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when NOTIFY_MODE is 'kafka'")
		}
	default:
		return fmt.Errorf("NOTIFY_MODE must be 'log' or 'kafka', got %q", c.NotifyMode)
	}

	return nil
}

// Namespace is the pending pair namespace of the trading environment.
func (c *Config) Namespace() string {
	return c.TradingEnv
}

// BaseURL returns the REST endpoint of the trading environment.
func (c *Config) BaseURL() string {
	if c.TradingEnv == EnvLive {
		return c.BinanceLiveURL
	}
	return c.BinanceTestnetURL
}

// Credentials returns the API key pair of the trading environment.
func (c *Config) Credentials() (apiKey, secretKey string) {
	if c.TradingEnv == EnvLive {
		return c.LiveAPIKey, c.LiveSecretKey
	}
	return c.TestnetAPIKey, c.TestnetSecretKey
}

// RequireCredentials fails if the active environment has no API keys.
func (c *Config) RequireCredentials() error {
	apiKey, secretKey := c.Credentials()
	if apiKey == "" || secretKey == "" {
		prefix := "BINANCE_TESTNET"
		if c.TradingEnv == EnvLive {
			prefix = "BINANCE_LIVE"
		}
		return fmt.Errorf("%s_API_KEY and %s_SECRET_KEY are required", prefix, prefix)
	}
	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

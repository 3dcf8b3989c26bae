package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log encodings accepted by LOG_FORMAT.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// NewLogger builds the process logger from cfg. Every entry carries the
// trading environment and symbol so logs of a testnet and a live bot
// sharing a sink stay apart.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	var level zapcore.Level
	err := level.UnmarshalText([]byte(cfg.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == LogFormatConsole {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = cfg.LogFormat
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.InitialFields = map[string]interface{}{
		"env":    cfg.TradingEnv,
		"symbol": cfg.Symbol,
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}

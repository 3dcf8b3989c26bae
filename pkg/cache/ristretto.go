package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a Cache backed by Ristretto.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for Ristretto cache.
type RistrettoConfig struct {
	NumCounters int64 // ~10x the expected number of items
	MaxItems    int64
	Logger      *zap.Logger
}

// DefaultRistrettoConfig is sized for a single-symbol bot.
func DefaultRistrettoConfig(logger *zap.Logger) *RistrettoConfig {
	return &RistrettoConfig{
		NumCounters: 1000,
		MaxItems:    100,
		Logger:      logger,
	}
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (*RistrettoCache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxItems <= 0 {
		return nil, fmt.Errorf("max items must be positive")
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &RistrettoCache{
		cache:  c,
		logger: cfg.Logger,
	}, nil
}

// Get retrieves a value from the cache.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		HitsTotal.WithLabelValues(kindOf(key)).Inc()
	} else {
		MissesTotal.WithLabelValues(kindOf(key)).Inc()
	}
	return value, found
}

// Set stores a value with cost 1, so MaxItems bounds the entry count.
// Admission is asynchronous; a true result does not guarantee the value is
// visible to the next Get.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if !ok {
		RejectedSetsTotal.WithLabelValues(kindOf(key)).Inc()
		r.logger.Debug("cache-set-rejected", zap.String("key", key))
	}
	return ok
}

func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
}

func (r *RistrettoCache) Close() {
	r.cache.Close()
	r.logger.Info("cache-closed")
}

// Wait blocks until pending writes are applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}

func kindOf(key string) string {
	kind, _, found := strings.Cut(key, ":")
	if !found {
		return "other"
	}
	return kind
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *RistrettoCache {
	t.Helper()
	c, err := NewRistrettoCache(DefaultRistrettoConfig(zap.NewNop()))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNewRistrettoCache_Validation(t *testing.T) {
	_, err := NewRistrettoCache(nil)
	assert.EqualError(t, err, "config cannot be nil")

	_, err = NewRistrettoCache(&RistrettoConfig{MaxItems: 10})
	assert.EqualError(t, err, "logger cannot be nil")

	_, err = NewRistrettoCache(&RistrettoConfig{Logger: zap.NewNop()})
	assert.EqualError(t, err, "max items must be positive")
}

func TestRistrettoCache_SetGetDelete(t *testing.T) {
	c := newTestCache(t)

	require.True(t, c.Set("price:BTCUSDT", 42000.5, time.Hour))
	c.Wait()

	v, ok := c.Get("price:BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, 42000.5, v)

	_, ok = c.Get("filters:BTCUSDT")
	assert.False(t, ok)

	c.Delete("price:BTCUSDT")
	_, ok = c.Get("price:BTCUSDT")
	assert.False(t, ok)
}

func TestRistrettoCache_TTL(t *testing.T) {
	c := newTestCache(t)

	c.Set("price:BTCUSDT", 1.0, 100*time.Millisecond)
	c.Wait()
	_, ok := c.Get("price:BTCUSDT")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, found := c.Get("price:BTCUSDT")
		return !found
	}, 3*time.Second, 50*time.Millisecond)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, "price", kindOf("price:BTCUSDT"))
	assert.Equal(t, "filters", kindOf("filters:ETHUSDT"))
	assert.Equal(t, "other", kindOf("plain"))
}

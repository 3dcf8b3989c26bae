package pending

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openPebble(t *testing.T, fs vfs.FS, namespace string) *PebbleBackend {
	t.Helper()
	s, err := NewPebbleBackend(&PebbleConfig{
		Dir:       "pending-db",
		Namespace: namespace,
		FS:        fs,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return s
}

func TestPebbleBackend_RoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()
	created := time.UnixMilli(1_700_000_000_000).UTC()

	s := openPebble(t, fs, "testnet")
	p := testPair("pair-1", 555, created)
	require.NoError(t, s.Put(ctx, p))
	require.NoError(t, s.Put(ctx, testPair("pair-2", 556, created)))
	require.NoError(t, s.Delete(ctx, "pair-2"))
	require.NoError(t, s.Close())

	s = openPebble(t, fs, "testnet")
	defer s.Close()

	pairs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, p, pairs[0])
}

func TestPebbleBackend_NamespacesDoNotMix(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()

	s := openPebble(t, fs, "testnet")
	require.NoError(t, s.Put(ctx, testPair("sandbox", 1, time.Now())))
	require.NoError(t, s.Close())

	live := openPebble(t, fs, "live")
	defer live.Close()

	pairs, err := live.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	require.NoError(t, live.Put(ctx, testPair("real", 2, time.Now())))
	pairs, err = live.Load(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "real", pairs[0].ID)
}

func TestPebbleBackend_Validation(t *testing.T) {
	_, err := NewPebbleBackend(nil)
	assert.Error(t, err)

	_, err = NewPebbleBackend(&PebbleConfig{Dir: "x", Logger: zap.NewNop()})
	assert.ErrorContains(t, err, "namespace cannot be empty")
}

package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// PebbleBackend stores pairs in an embedded pebble database under
// pending/<namespace>/<pair-id>.
type PebbleBackend struct {
	db        *pebble.DB
	namespace string
	logger    *zap.Logger
}

// PebbleConfig holds pebble backend configuration.
type PebbleConfig struct {
	Dir       string
	Namespace string
	// FS overrides the filesystem, e.g. vfs.NewMem() in tests.
	FS     vfs.FS
	Logger *zap.Logger
}

type pebbleRecord struct {
	ID               string  `json:"id"`
	BuyOrderID       int64   `json:"buy_order_id"`
	BuyClientOrderID string  `json:"buy_client_order_id"`
	BuyPrice         float64 `json:"buy_price"`
	SellPrice        float64 `json:"sell_price"`
	Quantity         float64 `json:"quantity"`
	InvestedAmount   float64 `json:"invested_amount"`
	CreatedAtMillis  int64   `json:"created_at_ms"`
}

// NewPebbleBackend opens (or creates) the pebble database at cfg.Dir.
func NewPebbleBackend(cfg *PebbleConfig) (*PebbleBackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opts := &pebble.Options{}
	if cfg.FS != nil {
		opts.FS = cfg.FS
	}

	db, err := pebble.Open(cfg.Dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	cfg.Logger.Info("pebble-pending-store-opened",
		zap.String("dir", cfg.Dir),
		zap.String("namespace", cfg.Namespace))

	return &PebbleBackend{
		db:        db,
		namespace: cfg.Namespace,
		logger:    cfg.Logger,
	}, nil
}

// Load returns every pair in the namespace.
func (s *PebbleBackend) Load(_ context.Context) ([]Pair, error) {
	prefix := s.prefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte{}, prefix...), 0xff),
	})
	if err != nil {
		return nil, fmt.Errorf("new iterator: %w", err)
	}
	defer iter.Close()

	var pairs []Pair
	for iter.First(); iter.Valid(); iter.Next() {
		var rec pebbleRecord
		err = json.Unmarshal(iter.Value(), &rec)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		pairs = append(pairs, rec.toPair())
	}

	err = iter.Error()
	if err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}

	return pairs, nil
}

// Put writes p with a synced write.
func (s *PebbleBackend) Put(_ context.Context, p Pair) error {
	val, err := json.Marshal(recordFromPair(p))
	if err != nil {
		return fmt.Errorf("encode pair: %w", err)
	}
	return s.db.Set(s.key(p.ID), val, pebble.Sync)
}

// Delete removes the pair with a synced write.
func (s *PebbleBackend) Delete(_ context.Context, id string) error {
	return s.db.Delete(s.key(id), pebble.Sync)
}

// Close closes the database.
func (s *PebbleBackend) Close() error {
	s.logger.Info("closing-pebble-pending-store")
	return s.db.Close()
}

func (s *PebbleBackend) prefix() []byte {
	return []byte("pending/" + s.namespace + "/")
}

func (s *PebbleBackend) key(id string) []byte {
	return append(s.prefix(), id...)
}

func recordFromPair(p Pair) pebbleRecord {
	return pebbleRecord{
		ID:               p.ID,
		BuyOrderID:       p.BuyOrderID,
		BuyClientOrderID: p.BuyClientOrderID,
		BuyPrice:         p.BuyPrice,
		SellPrice:        p.SellPrice,
		Quantity:         p.Quantity,
		InvestedAmount:   p.InvestedAmount,
		CreatedAtMillis:  p.CreatedAt.UnixMilli(),
	}
}

func (r pebbleRecord) toPair() Pair {
	return Pair{
		ID:               r.ID,
		BuyOrderID:       r.BuyOrderID,
		BuyClientOrderID: r.BuyClientOrderID,
		BuyPrice:         r.BuyPrice,
		SellPrice:        r.SellPrice,
		Quantity:         r.Quantity,
		InvestedAmount:   r.InvestedAmount,
		CreatedAt:        time.UnixMilli(r.CreatedAtMillis).UTC(),
	}
}

package pending

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no pair matches the given id.
	ErrNotFound = errors.New("pending pair not found")

	// ErrDuplicate is returned when adding a pair whose id is already stored.
	ErrDuplicate = errors.New("pending pair already exists")
)

// Backend durably persists pairs of a single namespace.
type Backend interface {
	Load(ctx context.Context) ([]Pair, error)
	Put(ctx context.Context, p Pair) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Book is the authoritative in-memory view of pending pairs.
// Every mutation is written through the backend before memory changes,
// so a failed write leaves the book exactly as it was.
type Book struct {
	// exclusive is held by commands and reconciliation passes across their
	// exchange calls and mutations.
	exclusive sync.Mutex

	mu      sync.RWMutex
	pairs   map[string]Pair
	backend Backend
	logger  *zap.Logger
}

// Config holds book configuration.
type Config struct {
	Backend Backend
	Logger  *zap.Logger
}

// NewBook loads all persisted pairs from the backend.
func NewBook(ctx context.Context, cfg *Config) (*Book, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	loaded, err := cfg.Backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pending pairs: %w", err)
	}

	b := &Book{
		pairs:   make(map[string]Pair, len(loaded)),
		backend: cfg.Backend,
		logger:  cfg.Logger,
	}
	for _, p := range loaded {
		b.pairs[p.ID] = p
	}
	PendingPairs.Set(float64(len(b.pairs)))

	cfg.Logger.Info("pending-book-loaded", zap.Int("pairs", len(b.pairs)))

	return b, nil
}

// Lock takes the exclusive lock shared by commands and reconciliation.
func (b *Book) Lock() {
	b.exclusive.Lock()
}

// Unlock releases the exclusive lock.
func (b *Book) Unlock() {
	b.exclusive.Unlock()
}

// Add stores a new pair.
func (b *Book) Add(ctx context.Context, p Pair) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pairs[p.ID]; exists {
		return fmt.Errorf("add %s: %w", p.ID, ErrDuplicate)
	}

	err := b.write(ctx, "add", p)
	if err != nil {
		return err
	}

	b.pairs[p.ID] = p
	PendingPairs.Set(float64(len(b.pairs)))

	b.logger.Debug("pending-pair-added",
		zap.String("pair-id", p.ID),
		zap.Int64("buy-order-id", p.BuyOrderID),
		zap.Float64("buy-price", p.BuyPrice),
		zap.Float64("sell-price", p.SellPrice),
		zap.Float64("quantity", p.Quantity))

	return nil
}

// Remove deletes the pair with the given id.
func (b *Book) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.pairs[id]; !exists {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}

	return b.removeLocked(ctx, id)
}

// RemoveByBuyOrderID deletes the pair whose buy leg is orderID.
func (b *Book) RemoveByBuyOrderID(ctx context.Context, orderID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, p := range b.pairs {
		if p.BuyOrderID == orderID {
			return b.removeLocked(ctx, id)
		}
	}

	return fmt.Errorf("remove buy order %d: %w", orderID, ErrNotFound)
}

// UpdateIntendedSellPrice changes the price the sell will be placed at.
func (b *Book) UpdateIntendedSellPrice(ctx context.Context, id string, price float64) error {
	return b.update(ctx, "update-sell-price", id, func(p *Pair) {
		p.SellPrice = price
	})
}

// UpdateBuyOrder points the pair at a new buy order.
func (b *Book) UpdateBuyOrder(ctx context.Context, id string, buy BuyOrder) error {
	return b.update(ctx, "update-buy-order", id, func(p *Pair) {
		p.BuyOrderID = buy.OrderID
		if buy.ClientOrderID != "" {
			p.BuyClientOrderID = buy.ClientOrderID
		}
		p.BuyPrice = buy.Price
		p.Quantity = buy.Quantity
		if buy.InvestedAmount > 0 {
			p.InvestedAmount = buy.InvestedAmount
		}
	})
}

// All returns every pair, oldest first.
func (b *Book) All() []Pair {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Pair, 0, len(b.pairs))
	for _, p := range b.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Get returns the pair with the given id.
func (b *Book) Get(id string) (Pair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.pairs[id]
	return p, ok
}

// FindByBuyOrderID returns the pair whose buy leg is orderID.
func (b *Book) FindByBuyOrderID(orderID int64) (Pair, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, p := range b.pairs {
		if p.BuyOrderID == orderID {
			return p, true
		}
	}
	return Pair{}, false
}

// Len returns the number of pending pairs.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pairs)
}

// Close closes the backend.
func (b *Book) Close() error {
	return b.backend.Close()
}

func (b *Book) update(ctx context.Context, op, id string, mutate func(p *Pair)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, exists := b.pairs[id]
	if !exists {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}

	next := current
	mutate(&next)

	err := b.write(ctx, op, next)
	if err != nil {
		return err
	}

	b.pairs[id] = next

	b.logger.Debug("pending-pair-updated",
		zap.String("op", op),
		zap.String("pair-id", id),
		zap.Int64("buy-order-id", next.BuyOrderID),
		zap.Float64("buy-price", next.BuyPrice),
		zap.Float64("sell-price", next.SellPrice),
		zap.Float64("quantity", next.Quantity))

	return nil
}

func (b *Book) removeLocked(ctx context.Context, id string) error {
	start := time.Now()
	err := b.backend.Delete(ctx, id)
	StoreWriteDuration.WithLabelValues("remove").Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrorsTotal.WithLabelValues("remove").Inc()
		return fmt.Errorf("delete pending pair %s: %w", id, err)
	}

	delete(b.pairs, id)
	PendingPairs.Set(float64(len(b.pairs)))

	b.logger.Debug("pending-pair-removed", zap.String("pair-id", id))

	return nil
}

func (b *Book) write(ctx context.Context, op string, p Pair) error {
	start := time.Now()
	err := b.backend.Put(ctx, p)
	StoreWriteDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreErrorsTotal.WithLabelValues(op).Inc()
		return fmt.Errorf("persist pending pair %s: %w", p.ID, err)
	}
	return nil
}

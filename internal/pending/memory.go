package pending

import (
	"context"
	"sync"
)

// MemoryBackend keeps pairs in process memory only. Used in tests and for
// dry runs where nothing must survive a restart.
type MemoryBackend struct {
	mu    sync.Mutex
	pairs map[string]Pair

	// FailWrites makes Put and Delete return this error when set.
	FailWrites error
}

// NewMemoryBackend creates an empty memory backend.
func NewMemoryBackend(seed ...Pair) *MemoryBackend {
	m := &MemoryBackend{pairs: make(map[string]Pair, len(seed))}
	for _, p := range seed {
		m.pairs[p.ID] = p
	}
	return m
}

// Load returns a copy of every stored pair.
func (m *MemoryBackend) Load(_ context.Context) ([]Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Pair, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p)
	}
	return out, nil
}

// Put stores p.
func (m *MemoryBackend) Put(_ context.Context, p Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.pairs[p.ID] = p
	return nil
}

// Delete removes the pair.
func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWrites != nil {
		return m.FailWrites
	}
	delete(m.pairs, id)
	return nil
}

// Close is a no-op.
func (m *MemoryBackend) Close() error {
	return nil
}

// Len returns the number of stored pairs.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pairs)
}

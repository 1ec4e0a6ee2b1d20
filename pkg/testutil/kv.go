package testutil

import (
	"context"
	"sync"

	"github.com/greenmarket/storefront/internal/storage"
)

// MemoryKV is an in-memory storage.KV for tests.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites makes Set return an error, for persistence-failure paths.
	FailWrites error
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// Seed stores a value directly, bypassing FailWrites.
func (m *MemoryKV) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

// Has reports whether a key is present.
func (m *MemoryKV) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

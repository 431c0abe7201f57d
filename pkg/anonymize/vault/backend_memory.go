package vault

import (
	"context"
	"sync"
)

// MemoryBackend keeps sealed mappings in process memory. Suitable for tests
// and single-run pipelines.
type MemoryBackend struct {
	mu     sync.RWMutex
	sealed map[string][]byte
	closed bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{sealed: make(map[string][]byte)}
}

func (m *MemoryBackend) Put(ctx context.Context, token string, sealed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrBackendClosed
	}
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	m.sealed[token] = cp
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, token string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrBackendClosed
	}
	sealed, ok := m.sealed[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := make([]byte, len(sealed))
	copy(cp, sealed)
	return cp, nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

package auditchain

import (
	"context"
	"errors"
	"sync"
)

var ErrEventNotFound = errors.New("event not found")

// MemoryStore keeps the chain in process memory. Events are stored by value
// so later mutation of a caller's copy cannot corrupt the chain.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, seq uint64) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if seq >= uint64(len(m.events)) {
		return nil, ErrEventNotFound
	}
	e := m.events[seq]
	return &e, nil
}

func (m *MemoryStore) Range(ctx context.Context, from, to uint64) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if from >= uint64(len(m.events)) {
		return nil, nil
	}
	if to >= uint64(len(m.events)) {
		to = uint64(len(m.events)) - 1
	}
	out := make([]*Event, 0, to-from+1)
	for i := from; i <= to; i++ {
		e := m.events[i]
		out = append(out, &e)
	}
	return out, nil
}

func (m *MemoryStore) Last(ctx context.Context) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.events) == 0 {
		return nil, nil
	}
	e := m.events[len(m.events)-1]
	return &e, nil
}

func (m *MemoryStore) Len(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.events)), nil
}

// corrupt overwrites a stored field in place. Test hook for tamper scenarios.
func (m *MemoryStore) corrupt(seq uint64, mutate func(*Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(&m.events[seq])
}

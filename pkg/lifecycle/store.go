package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrRecordNotFound  = errors.New("training record not found")
	ErrRecordExists    = errors.New("training record already exists")
	ErrDatasetNotFound = errors.New("dataset not found")
)

// Store persists records and datasets. Transition and UpdateDataset execute
// their mutation function under exclusive per-entity serialization: two
// concurrent transitions on one record serialize, and the second sees the
// first's post-state.
type Store interface {
	CreateRecord(ctx context.Context, record *TrainingRecord) error
	GetRecord(ctx context.Context, id string) (*TrainingRecord, error)
	Transition(ctx context.Context, id string, fn func(*TrainingRecord) error) (*TrainingRecord, error)
	ListRecords(ctx context.Context, status Status) ([]*TrainingRecord, error)

	CreateDataset(ctx context.Context, dataset *Dataset) error
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	UpdateDataset(ctx context.Context, id string, fn func(*Dataset) error) error
	ListDatasets(ctx context.Context) ([]*Dataset, error)
}

// MemoryStore is the in-process Store. Each record carries its own lock so
// transitions on different records never contend.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*recordSlot
	datasets map[string]*datasetSlot
}

type recordSlot struct {
	mu     sync.Mutex
	record TrainingRecord
}

type datasetSlot struct {
	mu      sync.Mutex
	dataset Dataset
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*recordSlot),
		datasets: make(map[string]*datasetSlot),
	}
}

func cloneRecord(r *TrainingRecord) *TrainingRecord {
	data, _ := json.Marshal(r)
	var out TrainingRecord
	_ = json.Unmarshal(data, &out)
	return &out
}

func cloneDataset(d *Dataset) *Dataset {
	data, _ := json.Marshal(d)
	var out Dataset
	_ = json.Unmarshal(data, &out)
	return &out
}

func (m *MemoryStore) CreateRecord(ctx context.Context, record *TrainingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[record.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRecordExists, record.ID)
	}
	m.records[record.ID] = &recordSlot{record: *cloneRecord(record)}
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, id string) (*TrainingRecord, error) {
	m.mu.RLock()
	slot, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return cloneRecord(&slot.record), nil
}

func (m *MemoryStore) Transition(ctx context.Context, id string, fn func(*TrainingRecord) error) (*TrainingRecord, error) {
	m.mu.RLock()
	slot, ok := m.records[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	working := cloneRecord(&slot.record)
	if err := fn(working); err != nil {
		return nil, err
	}
	slot.record = *working
	return cloneRecord(working), nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, status Status) ([]*TrainingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*TrainingRecord
	for _, slot := range m.records {
		slot.mu.Lock()
		if status == "" || slot.record.Status == status {
			out = append(out, cloneRecord(&slot.record))
		}
		slot.mu.Unlock()
	}
	return out, nil
}

func (m *MemoryStore) CreateDataset(ctx context.Context, dataset *Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.datasets[dataset.ID]; exists {
		return fmt.Errorf("dataset %s already exists", dataset.ID)
	}
	m.datasets[dataset.ID] = &datasetSlot{dataset: *cloneDataset(dataset)}
	return nil
}

func (m *MemoryStore) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	m.mu.RLock()
	slot, ok := m.datasets[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return cloneDataset(&slot.dataset), nil
}

func (m *MemoryStore) UpdateDataset(ctx context.Context, id string, fn func(*Dataset) error) error {
	m.mu.RLock()
	slot, ok := m.datasets[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	working := cloneDataset(&slot.dataset)
	if err := fn(working); err != nil {
		return err
	}
	slot.dataset = *working
	return nil
}

func (m *MemoryStore) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Dataset
	for _, slot := range m.datasets {
		slot.mu.Lock()
		out = append(out, cloneDataset(&slot.dataset))
		slot.mu.Unlock()
	}
	return out, nil
}

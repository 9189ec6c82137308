package storage

import (
	"sort"
	"sync"

	"github.com/carebox/carebox/core/model"
)

// MemoryStore keeps records in a map. It backs tests and devices
// running without a data directory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]model.Medication

	// FailSave forces Save to return an error, for failure-path tests.
	FailSave error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Medication{}}
}

func (m *MemoryStore) Save(med model.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	m.data[med.ID] = med.Clone()
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	delete(m.data, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadAll() ([]model.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Medication, 0, len(m.data))
	for _, med := range m.data {
		out = append(out, med.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Commit() error { return nil }

func (m *MemoryStore) Close() error { return nil }

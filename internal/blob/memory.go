package blob

import (
	"context"
	"sync"
)

// MemoryArchive stores snapshots in-memory for development and testing.
type MemoryArchive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryArchive creates an empty MemoryArchive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{data: make(map[string][]byte)}
}

// Save copies the data so later caller mutations cannot leak into the store.
func (m *MemoryArchive) Save(_ context.Context, objectName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[objectName] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored snapshot (testing helper).
func (m *MemoryArchive) Get(objectName string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[objectName]
	return data, ok
}

// Len reports how many snapshots are stored.
func (m *MemoryArchive) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

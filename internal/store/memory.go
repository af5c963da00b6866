package store

import (
	"sync"

	"github.com/i474232898/electricity-map/internal/electricity"
)

// MemoryStore is a concurrency-safe in-memory snapshot store.
// It holds at most one snapshot; Save replaces it.
type MemoryStore struct {
	mu       sync.RWMutex
	snapshot *electricity.Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save replaces the held snapshot.
func (s *MemoryStore) Save(snapshot electricity.Snapshot) error {
	cp := snapshot
	cp.History = append([]electricity.Record(nil), snapshot.History...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = &cp
	return nil
}

// Load returns the held snapshot, if any.
func (s *MemoryStore) Load() (electricity.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return electricity.Snapshot{}, false
	}
	return *s.snapshot, true
}

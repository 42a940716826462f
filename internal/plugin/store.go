package plugin

import (
	"sort"
	"sync"
)

// Store persists plugin records. Implementations must be safe for concurrent
// use; the manager serializes writes per plugin id on top of this.
type Store interface {
	// Get returns the record for a plugin id, or ErrPluginNotFound.
	Get(id string) (*Record, error)

	// Put saves a record, overwriting any existing one.
	Put(rec *Record) error

	// Delete removes a record. Deleting a missing id is not an error.
	Delete(id string) error

	// List returns all records, ordered by install time then id.
	List() ([]*Record, error)
}

// MemoryStore is an in-memory Store for tests and ephemeral hosts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Get returns the record for a plugin id.
func (s *MemoryStore) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return rec.Clone(), nil
}

// Put saves a record.
func (s *MemoryStore) Put(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone()
	return nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// List returns all records ordered by install time then id.
func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec.Clone())
	}
	sortRecords(recs)
	return recs, nil
}

// sortRecords orders by install time, then id for records installed in the
// same instant.
func sortRecords(recs []*Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].InstalledAt.Equal(recs[j].InstalledAt) {
			return recs[i].InstalledAt.Before(recs[j].InstalledAt)
		}
		return recs[i].ID < recs[j].ID
	})
}

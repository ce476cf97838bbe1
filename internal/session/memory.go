package session

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	out := rec
	return &out, nil
}

func (s *MemoryStore) Find(_ context.Context, query string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Match(s.records, query), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	out := slices.Clone(s.records)
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Record) int {
		switch {
		case newer(&a, &b):
			return -1
		case newer(&b, &a):
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.records)
	s.records = slices.DeleteFunc(s.records, func(r Record) bool { return r.Name == name })
	return before - len(s.records), nil
}

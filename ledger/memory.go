package ledger

import (
	"context"
	"sync"
)

// MemoryStore implements the Store interface using memory storage.
// It's primarily intended for testing purposes.
type MemoryStore struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates a new MemoryStore instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores the entry in memory
func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Latest returns the newest stored entry for pipelineName
func (s *MemoryStore) Latest(ctx context.Context, pipelineName string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest Entry
		found  bool
	)
	for _, e := range s.entries {
		if e.PipelineName == pipelineName && (!found || !e.DeployedAt.Before(latest.DeployedAt)) {
			latest, found = e, true
		}
	}
	return latest, found, nil
}

// Entries returns a copy of every stored entry
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...)
}

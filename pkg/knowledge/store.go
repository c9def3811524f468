// Package knowledge implements the pre-task checker, the learning duplicate
// detector, and learning capture over a pluggable knowledge store.
package knowledge

import (
	"context"
	"sync"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Store is the persistence port for knowledge entries. Implementations may
// back onto anything; the core only reads and appends.
type Store interface {
	// Entries returns every entry visible to a project. Entries with an
	// empty ProjectID are global and always included.
	Entries(ctx context.Context, projectID string) ([]models.KnowledgeEntry, error)
	Add(ctx context.Context, entry models.KnowledgeEntry) error
}

// MemoryStore is a mutex-guarded in-memory Store. The default when no
// external store is wired; also the test double.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []models.KnowledgeEntry
}

// NewMemoryStore creates a store seeded with the given entries.
func NewMemoryStore(seed ...models.KnowledgeEntry) *MemoryStore {
	return &MemoryStore{entries: append([]models.KnowledgeEntry(nil), seed...)}
}

// Entries returns global entries plus those scoped to projectID.
func (s *MemoryStore) Entries(_ context.Context, projectID string) ([]models.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.KnowledgeEntry
	for _, entry := range s.entries {
		if entry.ProjectID == "" || entry.ProjectID == projectID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Add appends an entry.
func (s *MemoryStore) Add(_ context.Context, entry models.KnowledgeEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

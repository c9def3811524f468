package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	defaultResolverTTL     = 5 * time.Minute
	defaultResolverEntries = 64
)

type cacheEntry struct {
	set       *PermissionSet
	touchedAt time.Time
}

// Resolver fetches permission sets through the store and caches them per
// (agentType, projectID) with a TTL. Hits refresh the entry's timestamp.
type Resolver struct {
	store      Store
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]*cacheEntry

	now func() time.Time
}

// NewResolver creates a resolver with the given TTL; zero values pick the
// defaults.
func NewResolver(store Store, ttl time.Duration, maxEntries int) *Resolver {
	if ttl <= 0 {
		ttl = defaultResolverTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultResolverEntries
	}
	return &Resolver{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
		now:        time.Now,
	}
}

// Resolve returns the permission set for an agent in a project, from cache
// when fresh.
func (r *Resolver) Resolve(ctx context.Context, agentType, projectID string) (*PermissionSet, error) {
	key := agentType + "|" + projectID

	r.mu.Lock()
	if entry, ok := r.entries[key]; ok {
		if r.now().Sub(entry.touchedAt) < r.ttl {
			entry.touchedAt = r.now()
			set := entry.set
			r.mu.Unlock()
			return set, nil
		}
		delete(r.entries, key)
	}
	r.mu.Unlock()

	set, err := r.store.Fetch(ctx, agentType, projectID)
	if err != nil {
		return nil, fmt.Errorf("fetch permissions for %s/%s: %w", agentType, projectID, err)
	}

	r.mu.Lock()
	if len(r.entries) >= r.maxEntries {
		r.evictOldestLocked()
	}
	r.entries[key] = &cacheEntry{set: set, touchedAt: r.now()}
	r.mu.Unlock()
	return set, nil
}

// Invalidate drops one cached pair, forcing the next Resolve to refetch.
func (r *Resolver) Invalidate(agentType, projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, agentType+"|"+projectID)
}

func (r *Resolver) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range r.entries {
		if oldestKey == "" || entry.touchedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.touchedAt
		}
	}
	if oldestKey != "" {
		delete(r.entries, oldestKey)
	}
}

// MemoryStore is an in-memory permission store with a fallback default set.
type MemoryStore struct {
	mu       sync.RWMutex
	sets     map[string]*PermissionSet
	fallback *PermissionSet
}

// NewMemoryStore creates a store serving the given default for unknown pairs.
func NewMemoryStore(fallback *PermissionSet) *MemoryStore {
	return &MemoryStore{
		sets:     make(map[string]*PermissionSet),
		fallback: fallback,
	}
}

// Put registers a set for its (agentType, projectID) pair.
func (s *MemoryStore) Put(set *PermissionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.AgentType+"|"+set.ProjectID] = set
}

// Fetch implements Store. A project-specific set wins over the agent's
// global set; the store-wide fallback serves only unknown agent types.
func (s *MemoryStore) Fetch(_ context.Context, agentType, projectID string) (*PermissionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.sets[agentType+"|"+projectID]; ok {
		return set, nil
	}
	if set, ok := s.sets[agentType+"|"]; ok {
		return set, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, fmt.Errorf("no permission set for %s/%s", agentType, projectID)
}

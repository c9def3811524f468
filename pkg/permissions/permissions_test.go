package permissions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet() *PermissionSet {
	return &PermissionSet{
		AgentType: "coder",
		ProjectID: "p-1",
		Tools: CategoryRules{
			Allow: []string{"Read", "Edit", "Bash"},
			Deny:  []string{"WebFetch"},
		},
		Files: CategoryRules{
			Deny:            []string{"**/*.pem", "**/secrets/**"},
			RequireApproval: []string{"**/migrations/**"},
		},
		Commands: CategoryRules{
			Deny: []string{"rm -rf*"},
		},
	}
}

func TestCheck_DenyWins(t *testing.T) {
	set := testSet()
	set.Tools.Allow = append(set.Tools.Allow, "WebFetch")
	assert.Equal(t, DecisionDeny, set.Check(CategoryTools, "WebFetch"))
}

func TestCheck_RequireApprovalBeforeAllow(t *testing.T) {
	set := testSet()
	assert.Equal(t, DecisionRequireApproval, set.Check(CategoryFiles, "db/migrations/001.sql"))
}

func TestCheck_GlobPatterns(t *testing.T) {
	set := testSet()
	assert.Equal(t, DecisionDeny, set.Check(CategoryFiles, "config/secrets/prod.yaml"))
	assert.Equal(t, DecisionDeny, set.Check(CategoryFiles, "certs/server.pem"))
	assert.Equal(t, DecisionAllow, set.Check(CategoryFiles, "pkg/engine/engine.go"))
}

func TestCheck_NonEmptyAllowListIsExclusive(t *testing.T) {
	set := testSet()
	assert.Equal(t, DecisionAllow, set.Check(CategoryTools, "Edit"))
	assert.Equal(t, DecisionDeny, set.Check(CategoryTools, "Task"))
}

func TestCheck_EmptyRulesAllow(t *testing.T) {
	set := testSet()
	assert.Equal(t, DecisionAllow, set.Check(CategoryGit, "push"))
}

type countingStore struct {
	inner   *MemoryStore
	fetches int
	err     error
}

func (c *countingStore) Fetch(ctx context.Context, agentType, projectID string) (*PermissionSet, error) {
	c.fetches++
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.Fetch(ctx, agentType, projectID)
}

func TestResolver_CachesWithinTTL(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(testSet())}
	r := NewResolver(store, time.Minute, 4)

	first, err := r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, store.fetches)
}

func TestResolver_ExpiredEntryRefetched(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(testSet())}
	r := NewResolver(store, time.Minute, 4)

	current := time.Now()
	r.now = func() time.Time { return current }

	_, err := r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.fetches)
}

func TestResolver_DistinctPairsCachedSeparately(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(testSet())}
	r := NewResolver(store, time.Minute, 4)

	_, err := r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "reviewer", "p-1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "coder", "p-2")
	require.NoError(t, err)
	assert.Equal(t, 3, store.fetches)
}

func TestResolver_InvalidateForcesRefetch(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(testSet())}
	r := NewResolver(store, time.Minute, 4)

	_, err := r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	r.Invalidate("coder", "p-1")
	_, err = r.Resolve(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.fetches)
}

func TestResolver_EvictsOldestWhenFull(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(testSet())}
	r := NewResolver(store, time.Hour, 2)

	current := time.Now()
	r.now = func() time.Time { return current }

	_, _ = r.Resolve(context.Background(), "a", "p")
	current = current.Add(time.Second)
	_, _ = r.Resolve(context.Background(), "b", "p")
	current = current.Add(time.Second)
	_, _ = r.Resolve(context.Background(), "c", "p") // evicts a

	require.Equal(t, 3, store.fetches)
	_, _ = r.Resolve(context.Background(), "b", "p") // still cached
	assert.Equal(t, 3, store.fetches)
	_, _ = r.Resolve(context.Background(), "a", "p") // refetched
	assert.Equal(t, 4, store.fetches)
}

func TestResolver_StoreErrorSurfaced(t *testing.T) {
	store := &countingStore{inner: NewMemoryStore(nil), err: fmt.Errorf("backend down")}
	r := NewResolver(store, time.Minute, 4)

	_, err := r.Resolve(context.Background(), "coder", "p-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "coder/p-1")
}

func TestMemoryStore_FallbackAndOverride(t *testing.T) {
	fallback := testSet()
	store := NewMemoryStore(fallback)

	set, err := store.Fetch(context.Background(), "unknown", "p-9")
	require.NoError(t, err)
	assert.Same(t, fallback, set)

	custom := testSet()
	custom.AgentType = "reviewer"
	store.Put(custom)
	got, err := store.Fetch(context.Background(), "reviewer", "p-1")
	require.NoError(t, err)
	assert.Same(t, custom, got)
}

func TestMemoryStore_AgentGlobalServesAnyProject(t *testing.T) {
	global := testSet()
	global.ProjectID = ""
	store := NewMemoryStore(nil)
	store.Put(global)

	scoped := testSet()
	scoped.ProjectID = "p-1"
	store.Put(scoped)

	got, err := store.Fetch(context.Background(), "coder", "p-1")
	require.NoError(t, err)
	assert.Same(t, scoped, got)

	got, err = store.Fetch(context.Background(), "coder", "p-2")
	require.NoError(t, err)
	assert.Same(t, global, got)

	_, err = store.Fetch(context.Background(), "reviewer", "p-1")
	assert.Error(t, err)
}

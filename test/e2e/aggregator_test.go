package e2e

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/retrieval"
)

// stubSource is a canned retrieval source for exercising the aggregator
// through the engine and the status API.
type stubSource struct {
	kind      models.SourceKind
	chunks    []models.ContextChunk
	err       error
	available bool
}

func newStubSource(kind models.SourceKind, chunks ...models.ContextChunk) *stubSource {
	return &stubSource{kind: kind, chunks: chunks, available: true}
}

func (s *stubSource) Name() string                       { return "stub-" + string(s.kind) }
func (s *stubSource) Kind() models.SourceKind            { return s.kind }
func (s *stubSource) Initialize(_ context.Context) error { return nil }
func (s *stubSource) IsAvailable(_ context.Context) bool { return s.available }
func (s *stubSource) Dispose() error                     { return nil }

func (s *stubSource) Retrieve(_ context.Context, _ retrieval.Query) retrieval.Result {
	if s.err != nil {
		return retrieval.Result{Err: s.err}
	}
	return retrieval.Result{Chunks: s.chunks, LatencyMs: 1}
}

func uploaderChunk() models.ContextChunk {
	content := "func uploadWithRetry(ctx context.Context, blob []byte) error {\n" +
		"\treturn backoff.Retry(func() error { return upload(ctx, blob) }, newPolicy())\n}"
	return models.ContextChunk{
		ID:         "keyword:internal/uploader/uploader.go:12",
		Content:    content,
		Source:     models.SourceKeyword,
		Relevance:  0.9,
		TokenCount: retrieval.EstimateTokens(content),
		Metadata: models.ChunkMetadata{
			FilePath:  "internal/uploader/uploader.go",
			StartLine: 12,
			EndLine:   14,
			Language:  "go",
		},
	}
}

func TestE2E_PlanningPromptCarriesRepositoryContext(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	ScriptHappyPath(agent, 42, "Add retry with backoff to the uploader")

	app := NewTestApp(t, WithAgent(agent),
		WithContextSources(newStubSource(models.SourceKeyword, uploaderChunk())))
	app.GitHub.AddIssue(42, "Add retry logic to uploader", "Uploads fail on flaky networks.", "ai-ready")

	require.NoError(t, app.RunIteration())

	// The keyword source's chunk made it into the planning prompt; the
	// unregistered rag and mcp sources degraded silently.
	calls := agent.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Prompt, "## Repository context")
	assert.Contains(t, calls[0].Prompt, "uploadWithRetry")
	assert.NotContains(t, calls[1].Prompt, "## Repository context")

	assert.True(t, app.GitHub.PR(100).Merged)

	stats := app.getJSON(t, "/api/v1/aggregator/stats", http.StatusOK)
	assert.Equal(t, float64(1), stats["requests"])
	assert.Equal(t, float64(0), stats["failures"])
	assert.Greater(t, stats["tokensServed"], float64(0))
}

func TestE2E_ContextRetrievalFailureDoesNotBlockIteration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	broken := newStubSource(models.SourceKeyword)
	broken.err = errors.New("index unreachable")

	agent := NewScriptedAgent()
	ScriptHappyPath(agent, 42, "Add retry with backoff to the uploader")

	app := NewTestApp(t, WithAgent(agent), WithContextSources(broken))
	app.GitHub.AddIssue(42, "Add retry logic to uploader", "Uploads fail on flaky networks.", "ai-ready")

	require.NoError(t, app.RunIteration())

	// Every planned source failed, so the prompt went out bare and the
	// iteration still merged.
	calls := agent.Calls()
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[0].Prompt, "## Repository context")
	assert.True(t, app.GitHub.PR(100).Merged)

	stats := app.getJSON(t, "/api/v1/aggregator/stats", http.StatusOK)
	assert.Equal(t, float64(1), stats["requests"])
	assert.Equal(t, float64(1), stats["failures"])
}

func TestE2E_AggregatorCachesRepeatedRequests(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	app := NewTestApp(t, WithContextSources(newStubSource(models.SourceKeyword, uploaderChunk())))

	request := func() *models.ContextRequest {
		return &models.ContextRequest{
			Query:     "uploader retry behaviour",
			TaskType:  models.TaskTypePlanning,
			MaxTokens: 2000,
			Sources:   []models.SourceKind{models.SourceKeyword, models.SourceRAG},
		}
	}

	first, err := app.Aggregator.GetContext(context.Background(), request())
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 2, first.Metrics.SourcesQueried)
	assert.Equal(t, 1, first.Metrics.SourcesSucceeded)
	require.Len(t, first.Chunks, 1)
	assert.Contains(t, first.Text, "uploadWithRetry")

	var ragErr string
	for _, c := range first.Contributions {
		if c.Source == models.SourceRAG {
			ragErr = c.Error
		}
	}
	assert.Contains(t, ragErr, "not registered")

	second, err := app.Aggregator.GetContext(context.Background(), request())
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)

	stats := app.getJSON(t, "/api/v1/aggregator/stats", http.StatusOK)
	assert.Equal(t, float64(2), stats["requests"])
	assert.Equal(t, float64(1), stats["cacheHits"])
	assert.Equal(t, float64(0), stats["failures"])
	assert.Equal(t, float64(1), stats["cacheEntries"])
}

func TestE2E_AggregatorStatsUnavailableWithoutSources(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	app := NewTestApp(t)

	app.getJSON(t, "/api/v1/aggregator/stats", http.StatusServiceUnavailable)
}

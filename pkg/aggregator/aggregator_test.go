package aggregator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/retrieval"
)

type stubSource struct {
	kind      models.SourceKind
	chunks    []models.ContextChunk
	err       error
	available bool
	calls     atomic.Int64
}

func (s *stubSource) Name() string                      { return string(s.kind) }
func (s *stubSource) Kind() models.SourceKind           { return s.kind }
func (s *stubSource) Initialize(context.Context) error  { return nil }
func (s *stubSource) IsAvailable(context.Context) bool  { return s.available }
func (s *stubSource) Dispose() error                    { return nil }

func (s *stubSource) Retrieve(context.Context, retrieval.Query) retrieval.Result {
	s.calls.Add(1)
	return retrieval.Result{Chunks: s.chunks, LatencyMs: 1, Err: s.err}
}

func aggregatorConfig() *config.AggregatorConfig {
	return &config.AggregatorConfig{
		Sources: map[models.SourceKind]config.SourceCaps{
			models.SourceVector:  {MaxChunks: 10, Timeout: time.Second},
			models.SourceKeyword: {MaxChunks: 10, Timeout: time.Second},
		},
		Caching: config.CachingConfig{Enabled: true, TTL: time.Minute, MaxEntries: 16},
		Budget:  config.BudgetConfig{DefaultMaxTokens: 1000, ReservedTokens: 100},
		Deduplication: config.DedupConfig{
			Enabled:             true,
			UseContentHash:      true,
			UseSemantic:         true,
			SimilarityThreshold: 0.95,
		},
	}
}

func testChunk(id string, tokens int, relevance float64) models.ContextChunk {
	return models.ContextChunk{
		ID:         id,
		Content:    "content of " + id,
		Relevance:  relevance,
		TokenCount: tokens,
	}
}

func newTestAggregator(sources ...retrieval.ContextSource) *Aggregator {
	return New(aggregatorConfig(), config.RankingConfig{FusionMethod: config.FusionRRF, RRFK: 60}, sources)
}

func TestAggregator_GetContextHappyPath(t *testing.T) {
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{
		testChunk("v1", 50, 0.9),
	}}
	keyword := &stubSource{kind: models.SourceKeyword, available: true, chunks: []models.ContextChunk{
		testChunk("k1", 50, 0.8),
	}}
	agg := newTestAggregator(vector, keyword)

	response, err := agg.GetContext(context.Background(), &models.ContextRequest{
		Query:    "how does login work",
		TaskType: models.TaskTypeDebugging,
	})
	require.NoError(t, err)
	assert.Len(t, response.Chunks, 2)
	assert.NotEmpty(t, response.Text)
	assert.False(t, response.CacheHit)
	assert.Equal(t, 2, response.Metrics.SourcesQueried)
	assert.Equal(t, 2, response.Metrics.SourcesSucceeded)
	assert.Equal(t, 100, response.Metrics.TokensUsed)
}

func TestAggregator_BudgetNeverExceeded(t *testing.T) {
	var big []models.ContextChunk
	for i := 0; i < 50; i++ {
		big = append(big, testChunk(fmt.Sprintf("v%d", i), 100, 0.9))
	}
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: big}
	agg := newTestAggregator(vector)

	req := &models.ContextRequest{
		Query:          "q",
		TaskType:       models.TaskTypeDebugging,
		MaxTokens:      500,
		ReservedTokens: 100,
		Sources:        []models.SourceKind{models.SourceVector},
	}
	response, err := agg.GetContext(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, response.TotalTokens(), 400)
	assert.LessOrEqual(t, response.Metrics.BudgetUtilization, 1.0)
}

func TestAggregator_SourceFailureIsIsolated(t *testing.T) {
	broken := &stubSource{kind: models.SourceVector, available: true, err: fmt.Errorf("store down")}
	working := &stubSource{kind: models.SourceKeyword, available: true, chunks: []models.ContextChunk{
		testChunk("k1", 10, 0.8),
	}}
	agg := newTestAggregator(broken, working)

	response, err := agg.GetContext(context.Background(), &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
	})
	require.NoError(t, err)
	assert.Len(t, response.Chunks, 1)
	assert.Equal(t, 1, response.Metrics.SourcesSucceeded)

	var failed *models.SourceContribution
	for i := range response.Contributions {
		if response.Contributions[i].Source == models.SourceVector {
			failed = &response.Contributions[i]
		}
	}
	require.NotNil(t, failed)
	assert.Contains(t, failed.Error, "store down")
}

func TestAggregator_UnavailableSourceReportsError(t *testing.T) {
	offline := &stubSource{kind: models.SourceVector, available: false}
	agg := newTestAggregator(offline)

	response, err := agg.GetContext(context.Background(), &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
		Sources:  []models.SourceKind{models.SourceVector},
	})
	require.NoError(t, err)
	assert.Empty(t, response.Chunks)
	require.Len(t, response.Contributions, 1)
	assert.Contains(t, response.Contributions[0].Error, "unavailable")
	assert.Zero(t, offline.calls.Load())
}

func TestAggregator_CacheHitOnRepeat(t *testing.T) {
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{
		testChunk("v1", 10, 0.9),
		testChunk("v2", 10, 0.7),
	}}
	agg := newTestAggregator(vector)

	req := &models.ContextRequest{
		Query:    "cached query",
		TaskType: models.TaskTypeDebugging,
		Sources:  []models.SourceKind{models.SourceVector},
	}
	first, err := agg.GetContext(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := agg.GetContext(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, int64(1), vector.calls.Load())

	require.Len(t, second.Chunks, len(first.Chunks))
	for i := range first.Chunks {
		assert.Equal(t, first.Chunks[i].ID, second.Chunks[i].ID, "cached ordering must match")
	}

	stats := agg.Stats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(1), stats.CacheHits)
}

func TestAggregator_SkipCacheBypasses(t *testing.T) {
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{
		testChunk("v1", 10, 0.9),
	}}
	agg := newTestAggregator(vector)

	req := &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
		Sources:  []models.SourceKind{models.SourceVector},
		Options:  models.RequestOptions{SkipCache: true},
	}
	_, err := agg.GetContext(context.Background(), req)
	require.NoError(t, err)
	_, err = agg.GetContext(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), vector.calls.Load())
}

func TestAggregator_EmptyQueryRejected(t *testing.T) {
	agg := newTestAggregator()
	_, err := agg.GetContext(context.Background(), &models.ContextRequest{TaskType: models.TaskTypeGeneral})
	assert.Error(t, err)
}

func TestAggregator_CrossSourceDedup(t *testing.T) {
	shared := testChunk("v-dup", 10, 0.9)
	twin := shared
	twin.ID = "k-dup"
	twin.Relevance = 0.7

	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{shared}}
	keyword := &stubSource{kind: models.SourceKeyword, available: true, chunks: []models.ContextChunk{twin}}
	agg := newTestAggregator(vector, keyword)

	response, err := agg.GetContext(context.Background(), &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
	})
	require.NoError(t, err)
	// Same normalised content from two sources collapses to one chunk.
	assert.Len(t, response.Chunks, 1)
	assert.Positive(t, response.Metrics.DedupRate)
}

func TestAggregator_StreamYieldsAssembledChunks(t *testing.T) {
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{
		testChunk("v1", 10, 0.9), testChunk("v2", 10, 0.8),
	}}
	agg := newTestAggregator(vector)

	stream, err := agg.StreamContext(context.Background(), &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
		Sources:  []models.SourceKind{models.SourceVector},
	})
	require.NoError(t, err)

	var ids []string
	for chunk := range stream {
		ids = append(ids, chunk.ID)
	}
	assert.Equal(t, []string{"v1", "v2"}, ids)
}

func TestAggregator_XMLFormatHonoured(t *testing.T) {
	vector := &stubSource{kind: models.SourceVector, available: true, chunks: []models.ContextChunk{
		testChunk("v1", 10, 0.9),
	}}
	agg := newTestAggregator(vector)

	response, err := agg.GetContext(context.Background(), &models.ContextRequest{
		Query:    "q",
		TaskType: models.TaskTypeDebugging,
		Sources:  []models.SourceKind{models.SourceVector},
		Options:  models.RequestOptions{Format: models.FormatXML},
	})
	require.NoError(t, err)
	assert.Equal(t, models.FormatXML, response.Format)
	assert.Contains(t, response.Text, "<context>")
}

func TestBuildPlan_PrioritiesOverlayDefaults(t *testing.T) {
	req := &models.ContextRequest{
		Query:     "q",
		TaskType:  models.TaskTypeDebugging,
		MaxTokens: 1000,
		SourcePriorities: map[models.SourceKind]float64{
			models.SourceVector: 0.9,
		},
	}
	p := buildPlan(req)
	assert.ElementsMatch(t, []models.SourceKind{models.SourceVector, models.SourceKeyword}, p.sources)
	assert.Greater(t, p.budgets[models.SourceVector], p.budgets[models.SourceKeyword])

	total := 0
	for _, b := range p.budgets {
		total += b
	}
	assert.LessOrEqual(t, total, 1000)
}

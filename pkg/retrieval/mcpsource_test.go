package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/models"
)

type fakeResourceProvider struct {
	servers   []string
	resources map[string][]mcp.Resource
	bodies    map[string]string
	cached    map[string]bool
	readErrs  map[string]error
}

func (f *fakeResourceProvider) ConnectedServers() []string { return f.servers }

func (f *fakeResourceProvider) ServerResources(name string) []mcp.Resource {
	return f.resources[name]
}

func (f *fakeResourceProvider) ReadResource(_ context.Context, _, uri string) ([]byte, bool, error) {
	if err := f.readErrs[uri]; err != nil {
		return nil, false, err
	}
	return []byte(f.bodies[uri]), f.cached[uri], nil
}

func newFakeResourceProvider() *fakeResourceProvider {
	return &fakeResourceProvider{
		servers: []string{"docs"},
		resources: map[string][]mcp.Resource{
			"docs": {
				{URI: "file:///runbook.md", Name: "runbook"},
				{URI: "file:///faq.md", Name: "faq"},
			},
		},
		bodies: map[string]string{
			"file:///runbook.md": "# Runbook",
			"file:///faq.md":     "# FAQ",
		},
		cached:   map[string]bool{},
		readErrs: map[string]error{},
	}
}

func TestMCPSource_WrapsResourcesAsChunks(t *testing.T) {
	provider := newFakeResourceProvider()
	src := NewMCPSource(provider, 5)

	result := src.Retrieve(context.Background(), Query{Text: "anything"})
	require.NoError(t, result.Err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "docs/file:///runbook.md", result.Chunks[0].ID)
	assert.Equal(t, models.SourceMCP, result.Chunks[0].Source)
	assert.Equal(t, "# Runbook", result.Chunks[0].Content)
	assert.False(t, result.CacheHit)
}

func TestMCPSource_MaxChunksCapsFetches(t *testing.T) {
	provider := newFakeResourceProvider()
	src := NewMCPSource(provider, 1)

	result := src.Retrieve(context.Background(), Query{Text: "anything"})
	require.NoError(t, result.Err)
	assert.Len(t, result.Chunks, 1)
}

func TestMCPSource_ReadFailuresAreSkipped(t *testing.T) {
	provider := newFakeResourceProvider()
	provider.readErrs["file:///runbook.md"] = fmt.Errorf("server busy")
	src := NewMCPSource(provider, 5)

	result := src.Retrieve(context.Background(), Query{Text: "anything"})
	require.NoError(t, result.Err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "docs/file:///faq.md", result.Chunks[0].ID)
}

func TestMCPSource_CacheHitOnlyWhenAllCached(t *testing.T) {
	provider := newFakeResourceProvider()
	provider.cached["file:///runbook.md"] = true
	provider.cached["file:///faq.md"] = true
	src := NewMCPSource(provider, 5)

	result := src.Retrieve(context.Background(), Query{Text: "anything"})
	require.NoError(t, result.Err)
	assert.True(t, result.CacheHit)

	provider.cached["file:///faq.md"] = false
	result = src.Retrieve(context.Background(), Query{Text: "anything"})
	assert.False(t, result.CacheHit)
}

func TestMCPSource_AvailabilityTracksConnections(t *testing.T) {
	provider := newFakeResourceProvider()
	src := NewMCPSource(provider, 5)
	assert.True(t, src.IsAvailable(context.Background()))

	provider.servers = nil
	assert.False(t, src.IsAvailable(context.Background()))
}

type fakePipeline struct {
	chunks []models.ContextChunk
	err    error
}

func (f *fakePipeline) Retrieve(context.Context, string, int) ([]models.ContextChunk, error) {
	return f.chunks, f.err
}

func TestRAGSource_DelegatesAndRetags(t *testing.T) {
	pipeline := &fakePipeline{chunks: []models.ContextChunk{
		{ID: "r1", Content: "ranked", Source: models.SourceVector, Relevance: 0.9},
	}}
	src := NewRAGSource(pipeline)

	result := src.Retrieve(context.Background(), Query{Text: "query", TopK: 3})
	require.NoError(t, result.Err)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, models.SourceRAG, result.Chunks[0].Source)
}

func TestRAGSource_PipelineErrorSurfaces(t *testing.T) {
	src := NewRAGSource(&fakePipeline{err: fmt.Errorf("ranker broke")})

	result := src.Retrieve(context.Background(), Query{Text: "query"})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "rag retrieve")
}

package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/models"
)

type fakeVectorStore struct {
	hits      []SearchHit
	searchErr error
	pingErr   error
	lastReq   SearchRequest
}

func (f *fakeVectorStore) Search(_ context.Context, _ string, req SearchRequest) ([]SearchHit, error) {
	f.lastReq = req
	return f.hits, f.searchErr
}

func (f *fakeVectorStore) Ping(context.Context) error { return f.pingErr }

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

func TestVectorSource_RetrieveMapsHits(t *testing.T) {
	store := &fakeVectorStore{hits: []SearchHit{
		{ID: "c1", Content: "token refresh flow", Score: 0.92, Metadata: models.ChunkMetadata{FilePath: "auth/token.go"}},
		{ID: "c2", Content: "session store", Score: 0.80},
	}}
	embedder := &fakeEmbedder{vector: []float32{0.1, 0.2}}
	src := NewVectorSource(store, embedder, "code", 10, 0.5)

	result := src.Retrieve(context.Background(), Query{Text: "token refresh"})
	require.NoError(t, result.Err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, models.SourceVector, result.Chunks[0].Source)
	assert.InDelta(t, 0.92, result.Chunks[0].Relevance, 1e-9)
	assert.Positive(t, result.Chunks[0].TokenCount)
}

func TestVectorSource_SuppliedEmbeddingSkipsEmbedCall(t *testing.T) {
	store := &fakeVectorStore{}
	embedder := &fakeEmbedder{}
	src := NewVectorSource(store, embedder, "code", 10, 0)

	result := src.Retrieve(context.Background(), Query{
		Text:      "anything",
		Embedding: []float32{1, 2, 3},
	})
	require.NoError(t, result.Err)
	assert.Zero(t, embedder.calls)
	assert.Equal(t, []float32{1, 2, 3}, store.lastReq.Embedding)
}

func TestVectorSource_EmbedFailureSurfacesError(t *testing.T) {
	src := NewVectorSource(&fakeVectorStore{}, &fakeEmbedder{err: fmt.Errorf("model down")}, "code", 10, 0)

	result := src.Retrieve(context.Background(), Query{Text: "query"})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "embed query")
}

func TestVectorSource_SearchFailureSurfacesError(t *testing.T) {
	store := &fakeVectorStore{searchErr: fmt.Errorf("store offline")}
	src := NewVectorSource(store, &fakeEmbedder{vector: []float32{1}}, "code", 10, 0)

	result := src.Retrieve(context.Background(), Query{Text: "query"})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "vector search")
}

func TestVectorSource_AvailabilityFollowsPing(t *testing.T) {
	store := &fakeVectorStore{}
	src := NewVectorSource(store, &fakeEmbedder{}, "code", 10, 0)
	assert.True(t, src.IsAvailable(context.Background()))

	store.pingErr = fmt.Errorf("unreachable")
	assert.False(t, src.IsAvailable(context.Background()))
	assert.Error(t, src.Initialize(context.Background()))
}

func TestVectorSource_LanguageFilterForwardedAndApplied(t *testing.T) {
	store := &fakeVectorStore{hits: []SearchHit{
		{ID: "go-chunk", Content: "x", Score: 0.9, Metadata: models.ChunkMetadata{Language: "go"}},
		{ID: "py-chunk", Content: "y", Score: 0.8, Metadata: models.ChunkMetadata{Language: "python"}},
	}}
	src := NewVectorSource(store, &fakeEmbedder{vector: []float32{1}}, "code", 10, 0)

	result := src.Retrieve(context.Background(), Query{
		Text:    "query",
		Filters: Filters{Language: "go"},
	})
	require.NoError(t, result.Err)
	assert.Equal(t, "go", store.lastReq.Filter["language"])
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "go-chunk", result.Chunks[0].ID)
}

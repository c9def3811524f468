package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamma-ai/tamma/pkg/models"
)

// SearchRequest is one similarity query against an external vector store.
type SearchRequest struct {
	Embedding      []float32
	TopK           int
	ScoreThreshold float64
	Filter         map[string]string
}

// SearchHit is one vector store match.
type SearchHit struct {
	ID       string
	Content  string
	Score    float64
	Metadata models.ChunkMetadata
}

// VectorStore is the external similarity index the vector source queries.
type VectorStore interface {
	Search(ctx context.Context, collection string, req SearchRequest) ([]SearchHit, error)
	Ping(ctx context.Context) error
}

// EmbeddingService turns query text into an embedding vector.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSource retrieves chunks from an external vector store, embedding
// the query first when the caller did not supply an embedding.
type VectorSource struct {
	base
	store          VectorStore
	embedder       EmbeddingService
	collection     string
	topK           int
	scoreThreshold float64
	logger         *slog.Logger
}

// NewVectorSource creates a vector source over the given store and embedder.
func NewVectorSource(store VectorStore, embedder EmbeddingService, collection string, topK int, scoreThreshold float64) *VectorSource {
	if topK <= 0 {
		topK = 10
	}
	return &VectorSource{
		base:           base{name: "vector", kind: models.SourceVector},
		store:          store,
		embedder:       embedder,
		collection:     collection,
		topK:           topK,
		scoreThreshold: scoreThreshold,
		logger:         slog.Default().With("source", "vector"),
	}
}

// Initialize verifies the store is reachable.
func (s *VectorSource) Initialize(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("vector store unreachable: %w", err)
	}
	return nil
}

// IsAvailable reports whether the store answers a ping.
func (s *VectorSource) IsAvailable(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}

// Retrieve embeds the query if needed, searches the collection, and maps
// hits into chunks with relevance = similarity score.
func (s *VectorSource) Retrieve(ctx context.Context, query Query) Result {
	return s.run(func() ([]models.ContextChunk, bool, error) {
		embedding := query.Embedding
		if len(embedding) == 0 {
			var err error
			embedding, err = s.embedder.Embed(ctx, query.Text)
			if err != nil {
				return nil, false, fmt.Errorf("embed query: %w", err)
			}
		}

		topK := query.TopK
		if topK <= 0 {
			topK = s.topK
		}
		filter := make(map[string]string)
		if query.Filters.Language != "" {
			filter["language"] = query.Filters.Language
		}

		hits, err := s.store.Search(ctx, s.collection, SearchRequest{
			Embedding:      embedding,
			TopK:           topK,
			ScoreThreshold: s.scoreThreshold,
			Filter:         filter,
		})
		if err != nil {
			return nil, false, fmt.Errorf("vector search: %w", err)
		}

		chunks := make([]models.ContextChunk, 0, len(hits))
		for _, hit := range hits {
			if !matchesFilters(hit.Metadata, query.Filters) {
				continue
			}
			chunks = append(chunks, models.ContextChunk{
				ID:         hit.ID,
				Content:    hit.Content,
				Source:     models.SourceVector,
				Relevance:  clamp01(hit.Score),
				TokenCount: EstimateTokens(hit.Content),
				Metadata:   hit.Metadata,
				Embedding:  nil,
			})
		}
		return chunks, false, nil
	})
}

// Dispose releases nothing; the store client is owned by the caller.
func (s *VectorSource) Dispose() error { return nil }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

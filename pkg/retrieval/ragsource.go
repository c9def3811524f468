package retrieval

import (
	"context"
	"fmt"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Pipeline is the slice of the RAG pipeline this adaptor needs: a ranked
// retrieval for a raw query. Satisfied by rag.Pipeline.
type Pipeline interface {
	Retrieve(ctx context.Context, query string, topK int) ([]models.ContextChunk, error)
}

// RAGSource delegates retrieval to the RAG pipeline, exposing it under the
// same contract as every other source.
type RAGSource struct {
	base
	pipeline Pipeline
}

// NewRAGSource wraps a RAG pipeline as a context source.
func NewRAGSource(pipeline Pipeline) *RAGSource {
	return &RAGSource{
		base:     base{name: "rag", kind: models.SourceRAG},
		pipeline: pipeline,
	}
}

// Initialize is a no-op; the pipeline is constructed ready.
func (s *RAGSource) Initialize(context.Context) error { return nil }

// IsAvailable reports whether a pipeline is wired.
func (s *RAGSource) IsAvailable(context.Context) bool { return s.pipeline != nil }

// Retrieve runs the pipeline and re-tags the chunks as RAG-sourced.
func (s *RAGSource) Retrieve(ctx context.Context, query Query) Result {
	return s.run(func() ([]models.ContextChunk, bool, error) {
		if s.pipeline == nil {
			return nil, false, fmt.Errorf("rag pipeline not configured")
		}
		chunks, err := s.pipeline.Retrieve(ctx, query.Text, query.TopK)
		if err != nil {
			return nil, false, fmt.Errorf("rag retrieve: %w", err)
		}
		out := make([]models.ContextChunk, 0, len(chunks))
		for _, chunk := range chunks {
			if !matchesFilters(chunk.Metadata, query.Filters) {
				continue
			}
			chunk.Source = models.SourceRAG
			out = append(out, chunk)
		}
		return out, false, nil
	})
}

// Dispose releases nothing; the pipeline is owned by the caller.
func (s *RAGSource) Dispose() error { return nil }

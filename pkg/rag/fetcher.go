package rag

import (
	"context"

	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/retrieval"
)

// SourceFetcher adapts a retrieval source to the pipeline's Fetcher port,
// feeding the processed query's variants through as term expansions.
type SourceFetcher struct {
	src retrieval.ContextSource
}

// NewSourceFetcher wraps a context source as a pipeline fetcher.
func NewSourceFetcher(src retrieval.ContextSource) *SourceFetcher {
	return &SourceFetcher{src: src}
}

func (f *SourceFetcher) Name() string { return f.src.Name() }

func (f *SourceFetcher) Kind() models.SourceKind { return f.src.Kind() }

// Fetch runs one retrieval. Variants beyond the original query become
// expansions; an unavailable source yields an empty list, not an error.
func (f *SourceFetcher) Fetch(ctx context.Context, query ProcessedQuery, topK int) ([]models.ContextChunk, error) {
	if !f.src.IsAvailable(ctx) {
		return nil, nil
	}

	var expansions []string
	if len(query.Variants) > 1 {
		expansions = query.Variants[1:]
	}
	result := f.src.Retrieve(ctx, retrieval.Query{
		Text:       query.Original,
		Expansions: expansions,
		TopK:       topK,
	})
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Chunks, nil
}

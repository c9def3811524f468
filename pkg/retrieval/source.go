// Package retrieval defines the context source contract and the concrete
// sources the aggregator fans out to: vector store, keyword/BM25 index,
// RAG pipeline adaptor, and MCP resource source.
package retrieval

import (
	"context"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Filters narrows a retrieval to matching chunks. Zero values mean "no
// filter". PathPattern is a doublestar glob matched against file paths.
type Filters struct {
	PathPattern string
	Language    string
	After       time.Time
}

// Query is one retrieval request against a single source.
type Query struct {
	Text string
	// Expansions are OR-joined into the term set by term-based sources.
	Expansions []string
	// Embedding, when present, lets the vector source skip the embed call.
	Embedding []float32
	TopK      int
	Filters   Filters
}

// Result is the outcome of a single source retrieval. A failed retrieval
// carries its error here; the caller decides whether that is fatal.
type Result struct {
	Chunks    []models.ContextChunk
	LatencyMs int64
	CacheHit  bool
	Err       error
}

// ContextSource is the uniform contract every retrieval source satisfies.
type ContextSource interface {
	Name() string
	Kind() models.SourceKind
	Initialize(ctx context.Context) error
	IsAvailable(ctx context.Context) bool
	Retrieve(ctx context.Context, query Query) Result
	Dispose() error
}

// base factors out the naming and timing shared by every source. Concrete
// sources embed it and wrap their retrieval body in run.
type base struct {
	name string
	kind models.SourceKind
}

func (b *base) Name() string            { return b.name }
func (b *base) Kind() models.SourceKind { return b.kind }

// run times fn and folds its outcome into a Result.
func (b *base) run(fn func() ([]models.ContextChunk, bool, error)) Result {
	start := time.Now()
	chunks, cacheHit, err := fn()
	return Result{
		Chunks:    chunks,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		Err:       err,
	}
}

// matchesFilters applies the path, language, and date filters to a chunk's
// metadata. An unparseable date passes the date filter rather than dropping
// the chunk.
func matchesFilters(meta models.ChunkMetadata, f Filters) bool {
	if f.PathPattern != "" {
		ok, err := doublestar.Match(f.PathPattern, meta.FilePath)
		if err != nil || !ok {
			return false
		}
	}
	if f.Language != "" && meta.Language != "" && meta.Language != f.Language {
		return false
	}
	if !f.After.IsZero() && meta.Date != "" {
		if ts, err := time.Parse(time.RFC3339, meta.Date); err == nil && ts.Before(f.After) {
			return false
		}
	}
	return true
}

// EstimateTokens approximates the token count of a text at four characters
// per token. Good enough for budget packing; never returns less than 1 for
// non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

package rag

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
)

// Fetcher is one retrieval backend the pipeline fans out to. Each fetcher
// returns its own relevance-ordered list for fusion.
type Fetcher interface {
	Name() string
	Kind() models.SourceKind
	Fetch(ctx context.Context, query ProcessedQuery, topK int) ([]models.ContextChunk, error)
}

// resultCacheTTL and resultCacheEntries bound the pipeline result cache.
const (
	resultCacheTTL     = 5 * time.Minute
	resultCacheEntries = 128
)

// Pipeline runs the full ranking flow: process the query, fan out to every
// fetcher, fuse with RRF, boost recency, dedup, and MMR-select the top k.
type Pipeline struct {
	processor *QueryProcessor
	fetchers  []Fetcher
	ranker    *Ranker
	cache     *ResultCache
	feedback  *FeedbackTracker
	cfg       *config.RAGConfig
	logger    *slog.Logger

	priorities map[models.SourceKind]float64
}

// NewPipeline assembles a pipeline over the given fetchers. priorities
// break fusion ties per source kind; missing kinds default to zero.
func NewPipeline(cfg *config.RAGConfig, fetchers []Fetcher, priorities map[models.SourceKind]float64) *Pipeline {
	return &Pipeline{
		processor:  NewQueryProcessor(3),
		fetchers:   fetchers,
		ranker:     NewRanker(cfg.Ranking),
		cache:      NewResultCache(resultCacheTTL, resultCacheEntries),
		feedback:   NewFeedbackTracker(),
		cfg:        cfg,
		logger:     slog.Default().With("component", "rag"),
		priorities: priorities,
	}
}

// Feedback exposes the tracker so task completion can report chunk
// usefulness back into ranking.
func (p *Pipeline) Feedback() *FeedbackTracker { return p.feedback }

// PurgeExpired drops expired result cache entries, returning the count.
func (p *Pipeline) PurgeExpired() int { return p.cache.PurgeExpired() }

// Retrieve returns the top-k ranked chunks for a raw query. Individual
// fetcher failures are logged and skipped; the pipeline fails only when a
// processed query yields nothing at all and no fetcher succeeded.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) ([]models.ContextChunk, error) {
	if topK <= 0 {
		topK = 10
	}
	if chunks, ok := p.cache.Get(query); ok {
		if len(chunks) > topK {
			chunks = chunks[:topK]
		}
		return chunks, nil
	}

	processed := p.processor.Process(query)

	type fetchOutcome struct {
		fetcher Fetcher
		chunks  []models.ContextChunk
		err     error
	}
	outcomes := make([]fetchOutcome, len(p.fetchers))
	var wg sync.WaitGroup
	for i, fetcher := range p.fetchers {
		wg.Add(1)
		go func(i int, fetcher Fetcher) {
			defer wg.Done()
			fetchCtx := ctx
			if p.cfg.Timeouts.PerSource > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeouts.PerSource)
				defer cancel()
			}
			chunks, err := fetcher.Fetch(fetchCtx, processed, topK*2)
			outcomes[i] = fetchOutcome{fetcher: fetcher, chunks: chunks, err: err}
		}(i, fetcher)
	}
	wg.Wait()

	var lists []RankedList
	var lastErr error
	for _, outcome := range outcomes {
		if outcome.err != nil {
			lastErr = outcome.err
			p.logger.Warn("fetcher failed", "fetcher", outcome.fetcher.Name(), "error", outcome.err)
			continue
		}
		if len(outcome.chunks) == 0 {
			continue
		}
		lists = append(lists, RankedList{
			Source:   outcome.fetcher.Kind(),
			Priority: p.priorities[outcome.fetcher.Kind()],
			Chunks:   outcome.chunks,
		})
	}
	if len(lists) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, nil
	}

	fused := p.ranker.Fuse(lists)
	for i := range fused {
		fused[i].Relevance += p.feedback.Adjustment(fused[i].ID)
	}
	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Relevance > fused[j].Relevance
	})
	fused = p.ranker.ApplyRecency(fused)
	fused = Dedup(fused, p.cfg.Assembly.DeduplicationThreshold)
	selected := p.ranker.SelectMMR(fused, topK)

	p.cache.Set(query, selected)
	return selected, nil
}

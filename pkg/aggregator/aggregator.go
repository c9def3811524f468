// Package aggregator fans a context request out to the configured retrieval
// sources and assembles a deduplicated, ranked, token-bounded context bundle.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/rag"
	"github.com/tamma-ai/tamma/pkg/retrieval"
)

// Stats is a point-in-time view of aggregator activity, exposed by the
// status API.
type Stats struct {
	Requests     int64   `json:"requests"`
	CacheHits    int64   `json:"cacheHits"`
	Failures     int64   `json:"failures"`
	AvgLatencyMs float64 `json:"avgLatencyMs"`
	AvgDedupRate float64 `json:"avgDedupRate"`
	TokensServed int64   `json:"tokensServed"`
	CacheEntries int     `json:"cacheEntries"`
}

// Aggregator owns the retrieval sources, the result cache, and the ranking
// configuration used to order fused results.
type Aggregator struct {
	cfg     *config.AggregatorConfig
	sources map[models.SourceKind]retrieval.ContextSource
	ranker  *rag.Ranker
	cache   *responseCache
	logger  *slog.Logger

	statsMu      sync.Mutex
	requests     int64
	cacheHits    int64
	failures     int64
	latencySumMs int64
	dedupRateSum float64
	tokensServed int64
}

// New creates an aggregator over the given sources. rankingCfg drives the
// fusion and recency behaviour shared with the RAG pipeline.
func New(cfg *config.AggregatorConfig, rankingCfg config.RankingConfig, sources []retrieval.ContextSource) *Aggregator {
	byKind := make(map[models.SourceKind]retrieval.ContextSource, len(sources))
	for _, src := range sources {
		byKind[src.Kind()] = src
	}
	return &Aggregator{
		cfg:     cfg,
		sources: byKind,
		ranker:  rag.NewRanker(rankingCfg),
		cache:   newResponseCache(cfg.Caching.TTL, cfg.Caching.MaxEntries),
		logger:  slog.Default().With("component", "aggregator"),
	}
}

// GetContext resolves one context request end to end. Source failures are
// folded into their SourceContribution; the call errors only on invalid
// requests.
func (a *Aggregator) GetContext(ctx context.Context, req *models.ContextRequest) (*models.ContextResponse, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("context request: empty query")
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = a.cfg.Budget.DefaultMaxTokens
	}
	if req.ReservedTokens == 0 {
		req.ReservedTokens = a.cfg.Budget.ReservedTokens
	}
	start := time.Now()

	key := CacheKey(req)
	if a.cfg.Caching.Enabled && !req.Options.SkipCache {
		if cached, ok := a.cache.Get(key); ok {
			a.recordRequest(time.Since(start), true, false, cached.TotalTokens(), 0)
			hit := *cached
			hit.CacheHit = true
			return &hit, nil
		}
	}

	if req.Options.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Options.TotalTimeout)*time.Millisecond)
		defer cancel()
	}

	plan := buildPlan(req)
	outcomes := a.fanOut(ctx, req, plan)

	var lists []rag.RankedList
	contributions := make([]models.SourceContribution, 0, len(plan.sources))
	initialCount := 0
	succeeded := 0
	for _, outcome := range outcomes {
		contribution := models.SourceContribution{
			Source:     outcome.kind,
			ChunkCount: len(outcome.result.Chunks),
			LatencyMs:  outcome.result.LatencyMs,
			CacheHit:   outcome.result.CacheHit,
		}
		if outcome.result.Err != nil {
			contribution.Error = outcome.result.Err.Error()
			contributions = append(contributions, contribution)
			continue
		}
		succeeded++
		chunks := capToBudget(outcome.result.Chunks, plan.budgets[outcome.kind])
		contribution.ChunkCount = len(chunks)
		for _, chunk := range chunks {
			contribution.TokensUsed += chunk.TokenCount
		}
		contributions = append(contributions, contribution)
		initialCount += len(chunks)
		if len(chunks) > 0 {
			lists = append(lists, rag.RankedList{
				Source:   outcome.kind,
				Priority: plan.weights[outcome.kind],
				Chunks:   chunks,
			})
		}
	}

	fused := a.ranker.Fuse(lists)
	fused = a.ranker.ApplyRecency(fused)
	deduped := deduplicate(fused, a.cfg.Deduplication)
	packed := rag.PackByTokens(deduped, req.EffectiveBudget())

	format := req.Options.Format
	if format == "" {
		format = models.FormatMarkdown
	}

	response := &models.ContextResponse{
		Chunks:        packed,
		Text:          rag.Render(packed, format, req.Options.IncludeScores),
		Format:        format,
		Contributions: contributions,
	}
	tokensUsed := response.TotalTokens()
	dedupRate := 0.0
	if initialCount > 0 {
		dedupRate = float64(initialCount-len(deduped)) / float64(initialCount)
	}
	utilization := 0.0
	if budget := req.EffectiveBudget(); budget > 0 {
		utilization = float64(tokensUsed) / float64(budget)
	}
	response.Metrics = models.ContextMetrics{
		TotalLatencyMs:    time.Since(start).Milliseconds(),
		TokensUsed:        tokensUsed,
		BudgetUtilization: utilization,
		DedupRate:         dedupRate,
		SourcesQueried:    len(plan.sources),
		SourcesSucceeded:  succeeded,
	}

	if a.cfg.Caching.Enabled && !req.Options.SkipCache {
		a.cache.Set(key, response)
	}
	a.recordRequest(time.Since(start), false, succeeded == 0 && len(plan.sources) > 0, tokensUsed, dedupRate)
	return response, nil
}

// StreamContext assembles the full response, then yields its chunks over a
// channel. Retrieval is not terminated early; streaming only changes
// delivery.
func (a *Aggregator) StreamContext(ctx context.Context, req *models.ContextRequest) (<-chan models.ContextChunk, error) {
	response, err := a.GetContext(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan models.ContextChunk)
	go func() {
		defer close(out)
		for _, chunk := range response.Chunks {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fanOutOutcome struct {
	kind   models.SourceKind
	result retrieval.Result
}

// fanOut issues one retrieval per planned source in parallel with settle-all
// semantics: every source resolves to an outcome, error or not.
func (a *Aggregator) fanOut(ctx context.Context, req *models.ContextRequest, plan plan) []fanOutOutcome {
	outcomes := make([]fanOutOutcome, len(plan.sources))
	var wg sync.WaitGroup
	for i, kind := range plan.sources {
		wg.Add(1)
		go func(i int, kind models.SourceKind) {
			defer wg.Done()
			outcomes[i] = fanOutOutcome{kind: kind, result: a.retrieveOne(ctx, req, kind)}
		}(i, kind)
	}
	wg.Wait()
	return outcomes
}

func (a *Aggregator) retrieveOne(ctx context.Context, req *models.ContextRequest, kind models.SourceKind) retrieval.Result {
	src, ok := a.sources[kind]
	if !ok {
		return retrieval.Result{Err: fmt.Errorf("source %q not registered", kind)}
	}
	caps := a.cfg.Sources[kind]
	if caps.Enabled != nil && !*caps.Enabled {
		return retrieval.Result{Err: fmt.Errorf("source %q disabled", kind)}
	}
	if !src.IsAvailable(ctx) {
		return retrieval.Result{Err: fmt.Errorf("source %q unavailable", kind)}
	}

	timeout := caps.Timeout
	if req.Options.PerSourceTimeout > 0 {
		timeout = time.Duration(req.Options.PerSourceTimeout) * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return src.Retrieve(ctx, retrieval.Query{
		Text:       req.Query,
		Expansions: req.Hints,
		TopK:       caps.MaxChunks,
	})
}

func (a *Aggregator) recordRequest(latency time.Duration, cacheHit, failed bool, tokens int, dedupRate float64) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.requests++
	a.latencySumMs += latency.Milliseconds()
	a.tokensServed += int64(tokens)
	if cacheHit {
		a.cacheHits++
	} else {
		a.dedupRateSum += dedupRate
	}
	if failed {
		a.failures++
	}
}

// Stats returns a snapshot of aggregator activity. The dedup average covers
// assembled requests only; cache hits repeat earlier dedup work.
func (a *Aggregator) Stats() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	avg := 0.0
	if a.requests > 0 {
		avg = float64(a.latencySumMs) / float64(a.requests)
	}
	dedupAvg := 0.0
	if assembled := a.requests - a.cacheHits; assembled > 0 {
		dedupAvg = a.dedupRateSum / float64(assembled)
	}
	return Stats{
		Requests:     a.requests,
		CacheHits:    a.cacheHits,
		Failures:     a.failures,
		AvgLatencyMs: avg,
		AvgDedupRate: dedupAvg,
		TokensServed: a.tokensServed,
		CacheEntries: a.cache.Len(),
	}
}

// PurgeExpired drops expired result cache entries, returning the count.
func (a *Aggregator) PurgeExpired() int {
	return a.cache.purgeExpired()
}

// Dispose releases every source.
func (a *Aggregator) Dispose() error {
	var firstErr error
	for _, src := range a.sources {
		if err := src.Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

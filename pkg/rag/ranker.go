package rag

import (
	"math"
	"sort"
	"time"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
)

// RankedList is one source's ordered contribution to fusion. Position in
// Chunks is the rank; Priority breaks fused-score ties (higher wins).
type RankedList struct {
	Source   models.SourceKind
	Priority float64
	Chunks   []models.ContextChunk
}

// Ranker fuses per-source ranked lists and re-scores the result with
// recency boosting and MMR diversification.
type Ranker struct {
	cfg config.RankingConfig
	now func() time.Time
}

// NewRanker creates a ranker from the ranking configuration.
func NewRanker(cfg config.RankingConfig) *Ranker {
	if cfg.RRFK <= 0 {
		cfg.RRFK = 60
	}
	if cfg.MMRLambda <= 0 || cfg.MMRLambda > 1 {
		cfg.MMRLambda = 0.7
	}
	if cfg.RecencyDecayDays <= 0 {
		cfg.RecencyDecayDays = 30
	}
	return &Ranker{cfg: cfg, now: time.Now}
}

// Fuse merges the ranked lists into one list ordered by fused score.
// With fusion_method=rrf each appearance adds 1/(k+rank); with max the
// best per-chunk relevance wins. Ties resolve by source priority, then
// chunk ID, so fusion is deterministic.
func (r *Ranker) Fuse(lists []RankedList) []models.ContextChunk {
	type fused struct {
		chunk    models.ContextChunk
		score    float64
		priority float64
	}
	byID := make(map[string]*fused)

	for _, list := range lists {
		for rank, chunk := range list.Chunks {
			var score float64
			if r.cfg.FusionMethod == config.FusionMax {
				score = chunk.Relevance
			} else {
				score = 1 / (r.cfg.RRFK + float64(rank+1))
			}
			entry, ok := byID[chunk.ID]
			if !ok {
				byID[chunk.ID] = &fused{chunk: chunk, score: score, priority: list.Priority}
				continue
			}
			if r.cfg.FusionMethod == config.FusionMax {
				if score > entry.score {
					entry.score = score
					entry.chunk = chunk
				}
			} else {
				entry.score += score
				if chunk.Relevance > entry.chunk.Relevance {
					entry.chunk = chunk
				}
			}
			if list.Priority > entry.priority {
				entry.priority = list.Priority
			}
		}
	}

	out := make([]*fused, 0, len(byID))
	for _, entry := range byID {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].chunk.ID < out[j].chunk.ID
	})

	chunks := make([]models.ContextChunk, 0, len(out))
	maxScore := 0.0
	if len(out) > 0 {
		maxScore = out[0].score
	}
	for _, entry := range out {
		chunk := entry.chunk
		if maxScore > 0 {
			chunk.Relevance = entry.score / maxScore
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// ApplyRecency adds recencyBoost × exp(−ageDays/decayDays) to each chunk
// carrying a parseable date, then re-sorts.
func (r *Ranker) ApplyRecency(chunks []models.ContextChunk) []models.ContextChunk {
	if r.cfg.RecencyBoost <= 0 {
		return chunks
	}
	now := r.now()
	for i := range chunks {
		date := chunks[i].Metadata.Date
		if date == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, date)
		if err != nil {
			continue
		}
		ageDays := now.Sub(ts).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		chunks[i].Relevance += r.cfg.RecencyBoost * math.Exp(-ageDays/r.cfg.RecencyDecayDays)
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Relevance > chunks[j].Relevance
	})
	return chunks
}

// Dedup removes exact ID duplicates, then collapses pairs whose embedding
// cosine similarity reaches threshold to the higher-relevance chunk.
// Chunks without embeddings only participate in ID matching.
func Dedup(chunks []models.ContextChunk, threshold float64) []models.ContextChunk {
	seen := make(map[string]int)
	var unique []models.ContextChunk
	for _, chunk := range chunks {
		if idx, ok := seen[chunk.ID]; ok {
			if chunk.Relevance > unique[idx].Relevance {
				unique[idx] = chunk
			}
			continue
		}
		seen[chunk.ID] = len(unique)
		unique = append(unique, chunk)
	}
	if threshold <= 0 {
		return unique
	}

	dropped := make([]bool, len(unique))
	for i := 0; i < len(unique); i++ {
		if dropped[i] || len(unique[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(unique); j++ {
			if dropped[j] || len(unique[j].Embedding) == 0 {
				continue
			}
			if CosineSimilarity(unique[i].Embedding, unique[j].Embedding) >= threshold {
				// unique is relevance-ordered, so i outranks j.
				dropped[j] = true
			}
		}
	}
	out := unique[:0]
	for i, chunk := range unique {
		if !dropped[i] {
			out = append(out, chunk)
		}
	}
	return out
}

// SelectMMR greedily picks k chunks maximising
// λ×relevance − (1−λ)×max-similarity-to-selected. Chunks without
// embeddings contribute zero similarity, so without any embeddings this
// degenerates to plain top-k.
func (r *Ranker) SelectMMR(chunks []models.ContextChunk, k int) []models.ContextChunk {
	if k <= 0 || len(chunks) <= k {
		return chunks
	}
	lambda := r.cfg.MMRLambda

	selected := make([]models.ContextChunk, 0, k)
	remaining := append([]models.ContextChunk(nil), chunks...)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)
		for i, cand := range remaining {
			maxSim := 0.0
			if len(cand.Embedding) > 0 {
				for _, sel := range selected {
					if len(sel.Embedding) == 0 {
						continue
					}
					if sim := CosineSimilarity(cand.Embedding, sel.Embedding); sim > maxSim {
						maxSim = sim
					}
				}
			}
			score := lambda*cand.Relevance - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

// CosineSimilarity computes the cosine of two embedding vectors. Mismatched
// lengths or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

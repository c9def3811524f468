package aggregator

import (
	"hash/fnv"
	"strings"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/rag"
)

// normalizeContent collapses all whitespace runs to single spaces so
// formatting differences do not defeat the content-hash phase.
func normalizeContent(content string) string {
	return strings.Join(strings.Fields(content), " ")
}

func contentHash(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(normalizeContent(content)))
	return h.Sum64()
}

// deduplicate runs the three dedup phases in order: exact content hash,
// line-range overlap merge, then embedding similarity grouping. Input must
// be relevance-ordered; output preserves that order.
func deduplicate(chunks []models.ContextChunk, cfg config.DedupConfig) []models.ContextChunk {
	if !cfg.Enabled || len(chunks) < 2 {
		return chunks
	}
	if cfg.UseContentHash {
		chunks = dedupByContentHash(chunks)
	}
	chunks = mergeOverlapping(chunks)
	if cfg.UseSemantic && cfg.SimilarityThreshold > 0 {
		chunks = dedupBySimilarity(chunks, cfg.SimilarityThreshold)
	}
	return chunks
}

// dedupByContentHash drops chunks whose whitespace-normalised content was
// already seen. The first (highest relevance) occurrence wins.
func dedupByContentHash(chunks []models.ContextChunk) []models.ContextChunk {
	seen := make(map[uint64]struct{}, len(chunks))
	out := chunks[:0]
	for _, chunk := range chunks {
		hash := contentHash(chunk.Content)
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		out = append(out, chunk)
	}
	return out
}

// mergeOverlapping keeps the higher-relevance chunk of any pair sharing a
// file path whose line ranges overlap by at least half the shorter span.
func mergeOverlapping(chunks []models.ContextChunk) []models.ContextChunk {
	dropped := make([]bool, len(chunks))
	for i := 0; i < len(chunks); i++ {
		if dropped[i] || chunks[i].Metadata.FilePath == "" {
			continue
		}
		for j := i + 1; j < len(chunks); j++ {
			if dropped[j] || chunks[j].Metadata.FilePath != chunks[i].Metadata.FilePath {
				continue
			}
			if lineOverlapRatio(&chunks[i], &chunks[j]) >= 0.5 {
				// Relevance order puts the keeper at i.
				dropped[j] = true
			}
		}
	}
	out := chunks[:0]
	for i, chunk := range chunks {
		if !dropped[i] {
			out = append(out, chunk)
		}
	}
	return out
}

// lineOverlapRatio returns the overlap of two line ranges relative to the
// shorter range's span. Chunks without line info never overlap.
func lineOverlapRatio(a, b *models.ContextChunk) float64 {
	spanA := a.LineSpan()
	spanB := b.LineSpan()
	if spanA == 0 || spanB == 0 {
		return 0
	}
	lo := max(a.Metadata.StartLine, b.Metadata.StartLine)
	hi := min(a.Metadata.EndLine, b.Metadata.EndLine)
	if hi <= lo {
		return 0
	}
	shorter := min(spanA, spanB)
	return float64(hi-lo) / float64(shorter)
}

// dedupBySimilarity groups chunks whose embeddings reach the cosine
// threshold and keeps the highest-relevance member per group.
func dedupBySimilarity(chunks []models.ContextChunk, threshold float64) []models.ContextChunk {
	dropped := make([]bool, len(chunks))
	for i := 0; i < len(chunks); i++ {
		if dropped[i] || len(chunks[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < len(chunks); j++ {
			if dropped[j] || len(chunks[j].Embedding) == 0 {
				continue
			}
			if rag.CosineSimilarity(chunks[i].Embedding, chunks[j].Embedding) >= threshold {
				dropped[j] = true
			}
		}
	}
	out := chunks[:0]
	for i, chunk := range chunks {
		if !dropped[i] {
			out = append(out, chunk)
		}
	}
	return out
}

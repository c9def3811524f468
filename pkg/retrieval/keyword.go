package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Okapi BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// Tokenize splits text into index terms: camelCase boundaries become word
// breaks, everything is lowercased, non-word runes separate tokens, and
// tokens shorter than two characters are dropped.
func Tokenize(text string) []string {
	text = camelBoundary.ReplaceAllString(text, "$1 $2")
	text = strings.ToLower(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, tok := range fields {
		if len(tok) >= 2 {
			out = append(out, tok)
		}
	}
	return out
}

// Document is one indexable unit of the keyword source.
type Document struct {
	ID       string
	Content  string
	Metadata models.ChunkMetadata
}

type indexedDoc struct {
	doc    Document
	length int
}

// KeywordSource is an in-memory inverted index scored with Okapi BM25.
type KeywordSource struct {
	base

	mu        sync.RWMutex
	docs      map[string]*indexedDoc
	postings  map[string]map[string]int // term -> docID -> term frequency
	totalLen  int
	maxChunks int
}

// NewKeywordSource creates an empty keyword index. maxChunks caps the
// result size per retrieval.
func NewKeywordSource(maxChunks int) *KeywordSource {
	if maxChunks <= 0 {
		maxChunks = 10
	}
	return &KeywordSource{
		base:      base{name: "keyword", kind: models.SourceKeyword},
		docs:      make(map[string]*indexedDoc),
		postings:  make(map[string]map[string]int),
		maxChunks: maxChunks,
	}
}

// Index adds or replaces documents in the index.
func (s *KeywordSource) Index(docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.removeLocked(doc.ID)
		tokens := Tokenize(doc.Content)
		s.docs[doc.ID] = &indexedDoc{doc: doc, length: len(tokens)}
		s.totalLen += len(tokens)
		for _, term := range tokens {
			if s.postings[term] == nil {
				s.postings[term] = make(map[string]int)
			}
			s.postings[term][doc.ID]++
		}
	}
}

// Remove drops a document from the index.
func (s *KeywordSource) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *KeywordSource) removeLocked(id string) {
	entry, ok := s.docs[id]
	if !ok {
		return
	}
	s.totalLen -= entry.length
	delete(s.docs, id)
	for term, posting := range s.postings {
		if _, ok := posting[id]; ok {
			delete(posting, id)
			if len(posting) == 0 {
				delete(s.postings, term)
			}
		}
	}
}

// Len returns the number of indexed documents.
func (s *KeywordSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Initialize is a no-op; the index is ready once constructed.
func (s *KeywordSource) Initialize(context.Context) error { return nil }

// IsAvailable reports whether the index holds any documents.
func (s *KeywordSource) IsAvailable(context.Context) bool { return s.Len() > 0 }

// Retrieve scores every document holding at least one query term with BM25
// and returns the top matches, relevance normalised to the best score.
// Expansion terms are OR-joined into the term set.
func (s *KeywordSource) Retrieve(ctx context.Context, query Query) Result {
	return s.run(func() ([]models.ContextChunk, bool, error) {
		termSet := make(map[string]struct{})
		for _, term := range Tokenize(query.Text) {
			termSet[term] = struct{}{}
		}
		for _, variant := range query.Expansions {
			for _, term := range Tokenize(variant) {
				termSet[term] = struct{}{}
			}
		}
		if len(termSet) == 0 {
			return nil, false, nil
		}

		s.mu.RLock()
		defer s.mu.RUnlock()

		n := len(s.docs)
		if n == 0 {
			return nil, false, nil
		}
		avgLen := float64(s.totalLen) / float64(n)

		scores := make(map[string]float64)
		for term := range termSet {
			posting, ok := s.postings[term]
			if !ok {
				continue
			}
			idf := idf(n, len(posting))
			for docID, tf := range posting {
				docLen := float64(s.docs[docID].length)
				norm := bm25K1 * (1 - bm25B + bm25B*docLen/avgLen)
				scores[docID] += idf * float64(tf) * (bm25K1 + 1) / (float64(tf) + norm)
			}
		}
		if len(scores) == 0 {
			return nil, false, nil
		}

		type scored struct {
			id    string
			score float64
		}
		ranked := make([]scored, 0, len(scores))
		maxScore := 0.0
		for id, score := range scores {
			if !matchesFilters(s.docs[id].doc.Metadata, query.Filters) {
				continue
			}
			ranked = append(ranked, scored{id: id, score: score})
			if score > maxScore {
				maxScore = score
			}
		}
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].score != ranked[j].score {
				return ranked[i].score > ranked[j].score
			}
			return ranked[i].id < ranked[j].id
		})

		limit := s.maxChunks
		if query.TopK > 0 && query.TopK < limit {
			limit = query.TopK
		}
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}

		chunks := make([]models.ContextChunk, 0, len(ranked))
		for _, entry := range ranked {
			doc := s.docs[entry.id].doc
			chunks = append(chunks, models.ContextChunk{
				ID:         doc.ID,
				Content:    doc.Content,
				Source:     models.SourceKeyword,
				Relevance:  entry.score / maxScore,
				TokenCount: EstimateTokens(doc.Content),
				Metadata:   doc.Metadata,
			})
		}
		return chunks, false, nil
	})
}

// Dispose clears the index.
func (s *KeywordSource) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*indexedDoc)
	s.postings = make(map[string]map[string]int)
	s.totalLen = 0
	return nil
}

// idf is the BM25 inverse document frequency, floored at zero so very
// common terms never produce negative scores.
func idf(n, df int) float64 {
	v := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	if v < 0 {
		return 0
	}
	return v
}

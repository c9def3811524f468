// Package rag implements the ranking core: query expansion, entity
// extraction, intent classification, reciprocal-rank fusion, recency boost,
// MMR diversification, and deduplication over retrieved chunks.
package rag

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tamma-ai/tamma/pkg/retrieval"
)

// Intent classifies what a query is after. It tunes ranking weights and
// lets callers pick default sources.
type Intent string

// Query intents.
const (
	IntentCodeSearch     Intent = "code_search"
	IntentExplanation    Intent = "explanation"
	IntentImplementation Intent = "implementation"
	IntentDebugging      Intent = "debugging"
	IntentDocumentation  Intent = "documentation"
	IntentRefactoring    Intent = "refactoring"
	IntentGeneral        Intent = "general"
)

// EntityKind tags an extracted query entity.
type EntityKind string

// Entity kinds.
const (
	EntityFile     EntityKind = "file"
	EntityClass    EntityKind = "class"
	EntityFunction EntityKind = "function"
	EntityPackage  EntityKind = "package"
)

// Entity is one recognised token of interest in the query.
type Entity struct {
	Text       string
	Kind       EntityKind
	Confidence float64
}

// ProcessedQuery is the expanded, analysed form of a raw query string.
type ProcessedQuery struct {
	Original string
	// Variants always includes the original first, then up to maxVariants
	// synonym rewrites.
	Variants []string
	Entities []Entity
	Intent   Intent
}

// synonyms is the per-token expansion table. Deliberately small: expansion
// recall comes from the keyword source OR-joining variants, not from an
// exhaustive thesaurus.
var synonyms = map[string][]string{
	"bug":      {"error", "defect", "issue"},
	"error":    {"failure", "exception"},
	"fix":      {"repair", "resolve", "patch"},
	"auth":     {"authentication", "login"},
	"config":   {"configuration", "settings"},
	"db":       {"database", "storage"},
	"function": {"method", "func"},
	"delete":   {"remove", "drop"},
	"create":   {"add", "insert"},
	"test":     {"spec", "unittest"},
	"doc":      {"documentation", "readme"},
	"perf":     {"performance", "latency"},
}

// intentKeywords maps trigger tokens to intents. First intent reaching the
// highest hit count wins; no hits means general.
var intentKeywords = map[Intent][]string{
	IntentCodeSearch:     {"find", "where", "search", "locate", "usage"},
	IntentExplanation:    {"explain", "what", "how", "why", "understand"},
	IntentImplementation: {"implement", "add", "create", "build", "write"},
	IntentDebugging:      {"debug", "fix", "error", "crash", "broken", "fails"},
	IntentDocumentation:  {"document", "readme", "docs", "comment"},
	IntentRefactoring:    {"refactor", "rename", "restructure", "cleanup", "simplify"},
}

var queryStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "into": {}, "when": {}, "does": {}, "should": {},
}

var (
	filePathRe   = regexp.MustCompile(`^[\w./-]*[a-zA-Z_][\w-]*\.[a-z]{1,6}$`)
	pascalCaseRe = regexp.MustCompile(`^[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+$`)
	camelCaseRe  = regexp.MustCompile(`^[a-z]+(?:[A-Z][a-z0-9]+)+$`)
	scopedPkgRe  = regexp.MustCompile(`^@[\w-]+/[\w-]+$`)
)

// QueryProcessor expands, analyses, and classifies raw queries.
type QueryProcessor struct {
	maxVariants int
}

// NewQueryProcessor creates a processor emitting at most maxVariants
// synonym rewrites per query.
func NewQueryProcessor(maxVariants int) *QueryProcessor {
	if maxVariants <= 0 {
		maxVariants = 3
	}
	return &QueryProcessor{maxVariants: maxVariants}
}

// Process runs expansion, entity extraction, and intent classification.
func (p *QueryProcessor) Process(query string) ProcessedQuery {
	return ProcessedQuery{
		Original: query,
		Variants: p.expand(query),
		Entities: ExtractEntities(query),
		Intent:   ClassifyIntent(query),
	}
}

// expand produces variants by substituting one synonym at a time, original
// first. Tokens are substituted in query order so output is deterministic.
func (p *QueryProcessor) expand(query string) []string {
	variants := []string{query}
	words := strings.Fields(query)
	seen := map[string]struct{}{query: {}}

	for i, word := range words {
		alts, ok := synonyms[strings.ToLower(word)]
		if !ok {
			continue
		}
		for _, alt := range alts {
			if len(variants) > p.maxVariants {
				return variants
			}
			rewritten := make([]string, len(words))
			copy(rewritten, words)
			rewritten[i] = alt
			variant := strings.Join(rewritten, " ")
			if _, dup := seen[variant]; dup {
				continue
			}
			seen[variant] = struct{}{}
			variants = append(variants, variant)
		}
	}
	return variants
}

// ExtractEntities pulls file paths, class names, function names, and scoped
// package names out of a query with regex heuristics.
func ExtractEntities(query string) []Entity {
	var entities []Entity
	for _, token := range strings.Fields(query) {
		token = strings.Trim(token, `"'.,;:()[]{}?!`)
		if token == "" {
			continue
		}
		if _, stop := queryStopwords[strings.ToLower(token)]; stop {
			continue
		}
		switch {
		case scopedPkgRe.MatchString(token):
			entities = append(entities, Entity{Text: token, Kind: EntityPackage, Confidence: 0.9})
		case filePathRe.MatchString(token):
			entities = append(entities, Entity{Text: token, Kind: EntityFile, Confidence: 0.9})
		case strings.Contains(token, "/") && !strings.HasPrefix(token, "/"):
			entities = append(entities, Entity{Text: token, Kind: EntityFile, Confidence: 0.6})
		case pascalCaseRe.MatchString(token):
			entities = append(entities, Entity{Text: token, Kind: EntityClass, Confidence: 0.7})
		case camelCaseRe.MatchString(token):
			entities = append(entities, Entity{Text: token, Kind: EntityFunction, Confidence: 0.7})
		}
	}
	return entities
}

// ClassifyIntent maps the query onto an intent by keyword hit count.
func ClassifyIntent(query string) Intent {
	tokens := retrieval.Tokenize(query)
	hits := make(map[Intent]int)
	for _, token := range tokens {
		for intent, keywords := range intentKeywords {
			for _, kw := range keywords {
				if token == kw {
					hits[intent]++
				}
			}
		}
	}
	if len(hits) == 0 {
		return IntentGeneral
	}

	intents := make([]Intent, 0, len(hits))
	for intent := range hits {
		intents = append(intents, intent)
	}
	// Stable winner under equal hit counts.
	sort.Slice(intents, func(i, j int) bool {
		if hits[intents[i]] != hits[intents[j]] {
			return hits[intents[i]] > hits[intents[j]]
		}
		return intents[i] < intents[j]
	})
	return intents[0]
}

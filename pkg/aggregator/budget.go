package aggregator

import (
	"sort"

	"github.com/tamma-ai/tamma/pkg/models"
)

// defaultSourceWeights gives each task type its default source set and
// relative weights. Request-level sourcePriorities overlay these.
var defaultSourceWeights = map[models.TaskType]map[models.SourceKind]float64{
	models.TaskTypePlanning: {
		models.SourceRAG:     0.4,
		models.SourceMCP:     0.3,
		models.SourceKeyword: 0.3,
	},
	models.TaskTypeImplementation: {
		models.SourceVector:  0.4,
		models.SourceKeyword: 0.3,
		models.SourceRAG:     0.3,
	},
	models.TaskTypeDebugging: {
		models.SourceVector:  0.5,
		models.SourceKeyword: 0.5,
	},
	models.TaskTypeDocumentation: {
		models.SourceMCP:     0.5,
		models.SourceKeyword: 0.5,
	},
	models.TaskTypeReview: {
		models.SourceVector:  0.5,
		models.SourceKeyword: 0.5,
	},
	models.TaskTypeGeneral: {
		models.SourceVector:  0.3,
		models.SourceKeyword: 0.3,
		models.SourceRAG:     0.2,
		models.SourceMCP:     0.2,
	},
}

// plan is the resolved source set with per-source weights and token budgets.
type plan struct {
	sources []models.SourceKind
	weights map[models.SourceKind]float64
	budgets map[models.SourceKind]int
}

// buildPlan resolves the source set (explicit sources, else task-type
// defaults), overlays request priorities onto the default weights, and
// allocates the effective budget proportionally.
func buildPlan(req *models.ContextRequest) plan {
	defaults := defaultSourceWeights[req.TaskType]
	if defaults == nil {
		defaults = defaultSourceWeights[models.TaskTypeGeneral]
	}

	var sources []models.SourceKind
	if len(req.Sources) > 0 {
		sources = append(sources, req.Sources...)
	} else {
		for kind := range defaults {
			sources = append(sources, kind)
		}
		sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	}

	weights := make(map[models.SourceKind]float64, len(sources))
	total := 0.0
	for _, kind := range sources {
		w := defaults[kind]
		if override, ok := req.SourcePriorities[kind]; ok {
			w = override
		}
		if w <= 0 {
			w = 0.1
		}
		weights[kind] = w
		total += w
	}

	budget := req.EffectiveBudget()
	budgets := make(map[models.SourceKind]int, len(sources))
	for _, kind := range sources {
		budgets[kind] = int(float64(budget) * weights[kind] / total)
	}
	return plan{sources: sources, weights: weights, budgets: budgets}
}

// capToBudget trims a source's chunks, in order, to its token allocation.
func capToBudget(chunks []models.ContextChunk, budget int) []models.ContextChunk {
	if budget <= 0 {
		return chunks
	}
	used := 0
	for i, chunk := range chunks {
		if used+chunk.TokenCount > budget {
			return chunks[:i]
		}
		used += chunk.TokenCount
	}
	return chunks
}

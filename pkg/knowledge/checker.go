package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/retrieval"
)

// TaskContext describes the task about to run, for knowledge lookup.
type TaskContext struct {
	TaskType    models.TaskType
	Description string
	ProjectID   string
	AgentType   string
}

// Query is the derived lookup the matchers run against.
type Query struct {
	TaskType     models.TaskType
	Description  string
	ProjectID    string
	AgentType    string
	FilePaths    []string
	Technologies []string
	Keywords     []string
}

// ScoredEntry pairs a knowledge entry with its combined match score.
type ScoredEntry struct {
	Entry models.KnowledgeEntry
	Score float64
}

// CheckResult is the checker's verdict for one task.
type CheckResult struct {
	CanProceed      bool
	Blockers        []ScoredEntry
	Warnings        []ScoredEntry
	Recommendations []ScoredEntry
	Learnings       []ScoredEntry
}

// Matcher combination weights. Keyword overlap dominates because most
// entries carry keywords while only path-specific ones carry globs.
const (
	keywordWeight = 0.6
	patternWeight = 0.4
)

// extLanguages maps file extensions to technology tags.
var extLanguages = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".py":   "python",
	".rs":   "rust",
	".java": "java",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".sh":   "shell",
	".md":   "markdown",
}

// approachTechnologies are scanned for in the plan approach text.
var approachTechnologies = []string{
	"docker", "kubernetes", "postgres", "mysql", "redis", "grpc",
	"graphql", "react", "terraform", "kafka", "websocket",
}

// Checker runs the pre-task knowledge check.
type Checker struct {
	store Store
	cfg   *config.KnowledgeConfig
}

// NewChecker creates a checker over a store.
func NewChecker(store Store, cfg *config.KnowledgeConfig) *Checker {
	return &Checker{store: store, cfg: cfg}
}

// BuildQuery derives the lookup query from the task and its plan.
func BuildQuery(task TaskContext, plan *models.DevelopmentPlan) Query {
	q := Query{
		TaskType:    task.TaskType,
		Description: task.Description,
		ProjectID:   task.ProjectID,
		AgentType:   task.AgentType,
	}
	if plan != nil {
		q.FilePaths = plan.TouchedPaths()
		q.Technologies = inferTechnologies(q.FilePaths, plan.Approach)
	}
	keywords := retrieval.Tokenize(task.Description)
	keywords = append(keywords, q.Technologies...)
	keywords = append(keywords, string(task.TaskType))
	q.Keywords = keywords
	return q
}

// inferTechnologies maps file extensions to languages and scans the
// approach text for known technology names.
func inferTechnologies(paths []string, approach string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tech string) {
		if _, dup := seen[tech]; !dup {
			seen[tech] = struct{}{}
			out = append(out, tech)
		}
	}
	for _, path := range paths {
		if lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]; ok {
			add(lang)
		}
	}
	lower := strings.ToLower(approach)
	for _, tech := range approachTechnologies {
		if strings.Contains(lower, tech) {
			add(tech)
		}
	}
	return out
}

// Check fetches entries, scores them with both matchers, and sorts the
// survivors into blockers, warnings, recommendations, and learnings.
func (c *Checker) Check(ctx context.Context, task TaskContext, plan *models.DevelopmentPlan) (*CheckResult, error) {
	result := &CheckResult{CanProceed: true}
	if c.cfg == nil || !c.cfg.Enabled {
		return result, nil
	}

	query := BuildQuery(task, plan)
	entries, err := c.store.Entries(ctx, query.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch knowledge entries: %w", err)
	}

	threshold := c.cfg.ScoreThreshold
	for _, entry := range entries {
		score := c.scoreEntry(entry, query)
		if score < threshold {
			continue
		}
		scored := ScoredEntry{Entry: entry, Score: score}
		switch entry.Kind {
		case models.KnowledgeProhibition:
			if entry.Priority == models.PriorityCritical && c.cfg.BlockOnCritical {
				result.Blockers = append(result.Blockers, scored)
			} else {
				result.Warnings = append(result.Warnings, scored)
			}
		case models.KnowledgeRecommendation:
			result.Recommendations = append(result.Recommendations, scored)
		case models.KnowledgeLearning:
			result.Learnings = append(result.Learnings, scored)
		}
	}

	sortByScore(result.Blockers)
	sortByScore(result.Warnings)
	sortByScore(result.Recommendations)
	sortByScore(result.Learnings)
	result.Recommendations = truncate(result.Recommendations, c.cfg.MaxRecommendations)
	result.Learnings = truncate(result.Learnings, c.cfg.MaxLearnings)
	result.CanProceed = len(result.Blockers) == 0
	return result, nil
}

// scoreEntry combines the keyword and pattern matchers. An entry carrying
// only one signal is scored on that signal alone so it is not penalised
// for the missing one.
func (c *Checker) scoreEntry(entry models.KnowledgeEntry, query Query) float64 {
	keywordScore := JaccardOverlap(entry.Keywords, query.Keywords)
	patternScore := PatternOverlap(entry.Patterns, query.FilePaths)

	hasKeywords := len(entry.Keywords) > 0
	hasPatterns := len(entry.Patterns) > 0
	switch {
	case hasKeywords && hasPatterns:
		return keywordWeight*keywordScore + patternWeight*patternScore
	case hasKeywords:
		return keywordScore
	case hasPatterns:
		return patternScore
	default:
		return 0
	}
}

func sortByScore(entries []ScoredEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}

func truncate(entries []ScoredEntry, limit int) []ScoredEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

package models

// SourceKind identifies a retrieval source. Chunks carry this stable tag
// instead of a back-reference to the source, so no ownership cycles arise.
type SourceKind string

// Retrieval source constants.
const (
	SourceVector  SourceKind = "vector"
	SourceKeyword SourceKind = "keyword"
	SourceRAG     SourceKind = "rag"
	SourceMCP     SourceKind = "mcp"
)

// IsValid checks if the source kind is valid.
func (s SourceKind) IsValid() bool {
	return s == SourceVector || s == SourceKeyword || s == SourceRAG || s == SourceMCP
}

// TaskType classifies the task a context request serves. It selects the
// default source set and budget allocation.
type TaskType string

// Task type constants.
const (
	TaskTypePlanning       TaskType = "planning"
	TaskTypeImplementation TaskType = "implementation"
	TaskTypeDebugging      TaskType = "debugging"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypeReview         TaskType = "review"
	TaskTypeGeneral        TaskType = "general"
)

// IsValid checks if the task type is valid.
func (t TaskType) IsValid() bool {
	switch t {
	case TaskTypePlanning, TaskTypeImplementation, TaskTypeDebugging,
		TaskTypeDocumentation, TaskTypeReview, TaskTypeGeneral:
		return true
	default:
		return false
	}
}

// OutputFormat selects how the assembled context is rendered.
type OutputFormat string

// Output format constants.
const (
	FormatPlain    OutputFormat = "plain"
	FormatMarkdown OutputFormat = "markdown"
	FormatXML      OutputFormat = "xml"
)

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	return f == FormatPlain || f == FormatMarkdown || f == FormatXML
}

// ChunkMetadata carries optional provenance details for a chunk.
type ChunkMetadata struct {
	FilePath  string   `json:"filePath,omitempty"`
	StartLine int      `json:"startLine,omitempty"`
	EndLine   int      `json:"endLine,omitempty"`
	Language  string   `json:"language,omitempty"`
	URL       string   `json:"url,omitempty"`
	Symbols   []string `json:"symbols,omitempty"`
	// Date is an RFC 3339 timestamp used by the recency boost, when known.
	Date string `json:"date,omitempty"`
}

// ContextChunk is one unit of retrieved context. Produced by sources,
// re-scored by the ranker, potentially merged with neighbours, and finally
// packed by the assembler.
type ContextChunk struct {
	ID         string        `json:"id"`
	Content    string        `json:"content"`
	Source     SourceKind    `json:"source"`
	Relevance  float64       `json:"relevance"` // in [0,1]
	TokenCount int           `json:"tokenCount"`
	Metadata   ChunkMetadata `json:"metadata"`
	Embedding  []float32     `json:"-"`
}

// LineSpan returns the chunk's line range length, or 0 when unknown.
func (c *ContextChunk) LineSpan() int {
	if c.Metadata.EndLine <= c.Metadata.StartLine {
		return 0
	}
	return c.Metadata.EndLine - c.Metadata.StartLine
}

// RequestOptions tunes a single context request.
type RequestOptions struct {
	SkipCache        bool         `json:"skipCache,omitempty"`
	Format           OutputFormat `json:"format,omitempty"`
	IncludeScores    bool         `json:"includeScores,omitempty"`
	PerSourceTimeout int          `json:"perSourceTimeoutMs,omitempty"`
	TotalTimeout     int          `json:"totalTimeoutMs,omitempty"`
}

// ContextRequest asks the aggregator for a token-bounded context bundle.
// Immutable per retrieval.
type ContextRequest struct {
	Query            string                 `json:"query"`
	TaskType         TaskType               `json:"taskType"`
	MaxTokens        int                    `json:"maxTokens"`
	ReservedTokens   int                    `json:"reservedTokens,omitempty"`
	Sources          []SourceKind           `json:"sources,omitempty"`
	SourcePriorities map[SourceKind]float64 `json:"sourcePriorities,omitempty"`
	Hints            []string               `json:"hints,omitempty"`
	Options          RequestOptions         `json:"options,omitempty"`
}

// EffectiveBudget is the token budget actually available for chunks.
func (r *ContextRequest) EffectiveBudget() int {
	budget := r.MaxTokens - r.ReservedTokens
	if budget < 0 {
		return 0
	}
	return budget
}

// SourceContribution reports one source's share of a response. A failed
// source carries its error here instead of aborting the whole request.
type SourceContribution struct {
	Source     SourceKind `json:"source"`
	ChunkCount int        `json:"chunkCount"`
	TokensUsed int        `json:"tokensUsed"`
	LatencyMs  int64      `json:"latencyMs"`
	CacheHit   bool       `json:"cacheHit"`
	Error      string     `json:"error,omitempty"`
}

// ContextMetrics summarises one aggregation pass.
type ContextMetrics struct {
	TotalLatencyMs    int64   `json:"totalLatencyMs"`
	TokensUsed        int     `json:"tokensUsed"`
	BudgetUtilization float64 `json:"budgetUtilization"`
	DedupRate         float64 `json:"dedupRate"`
	SourcesQueried    int     `json:"sourcesQueried"`
	SourcesSucceeded  int     `json:"sourcesSucceeded"`
}

// ContextResponse is the assembled, budget-respecting result of a request.
// Invariant: sum of chunk token counts never exceeds the effective budget.
type ContextResponse struct {
	Chunks        []ContextChunk       `json:"chunks"`
	Text          string               `json:"text"`
	Format        OutputFormat         `json:"format"`
	Contributions []SourceContribution `json:"contributions"`
	Metrics       ContextMetrics       `json:"metrics"`
	CacheHit      bool                 `json:"cacheHit"`
}

// TotalTokens sums the token counts of all chunks in the response.
func (r *ContextResponse) TotalTokens() int {
	total := 0
	for i := range r.Chunks {
		total += r.Chunks[i].TokenCount
	}
	return total
}

package config

import (
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Built-in defaults. User YAML is merged on top; non-zero user values win.

// DefaultAgentConfig returns the built-in agent defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		CLIPath:            "claude",
		AgentType:          "engineer",
		Model:              "sonnet",
		MaxBudgetUSD:       5.0,
		AllowedTools:       []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob"},
		PermissionMode:     PermissionModeAsk,
		TaskTimeout:        30 * time.Minute,
		DisposeGracePeriod: 10 * time.Second,
	}
}

// DefaultEngineConfig returns the built-in engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		PollInterval:       60 * time.Second,
		WorkingDirectory:   ".",
		MaxRetries:         3,
		ApprovalMode:       ApprovalModeAuto,
		MergeMethod:        models.MergeMethodSquash,
		CIPollInterval:     30 * time.Second,
		CITimeout:          30 * time.Minute,
		AutoApproveLowRisk: true,
		HighRiskPatterns: []string{
			"**/auth/**",
			"**/security/**",
			"**/*migration*",
			".github/**",
		},
		ReviewThreshold: 0.7,
	}
}

// DefaultPlatformConfig returns the built-in platform defaults.
func DefaultPlatformConfig() *PlatformConfig {
	return &PlatformConfig{
		BaseURL:       "https://api.github.com",
		TokenEnv:      "GITHUB_TOKEN",
		DefaultBranch: "main",
		RetryAttempts: 3,
	}
}

// DefaultAggregatorConfig returns the built-in aggregator defaults.
func DefaultAggregatorConfig() *AggregatorConfig {
	return &AggregatorConfig{
		Sources: map[models.SourceKind]SourceCaps{
			models.SourceVector:  {MaxChunks: 20, Timeout: 5 * time.Second},
			models.SourceKeyword: {MaxChunks: 20, Timeout: 2 * time.Second},
			models.SourceRAG:     {MaxChunks: 30, Timeout: 10 * time.Second},
			models.SourceMCP:     {MaxChunks: 10, Timeout: 10 * time.Second},
		},
		Caching: CachingConfig{
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 100,
		},
		Budget: BudgetConfig{
			DefaultMaxTokens: 8000,
			ReservedTokens:   500,
			MinChunkTokens:   10,
			MaxChunkTokens:   2000,
		},
		Deduplication: DedupConfig{
			Enabled:             true,
			UseContentHash:      true,
			UseSemantic:         true,
			SimilarityThreshold: 0.92,
		},
	}
}

// DefaultRAGConfig returns the built-in RAG defaults.
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Ranking: RankingConfig{
			FusionMethod:     FusionRRF,
			RRFK:             60,
			MMRLambda:        0.7,
			RecencyBoost:     0.1,
			RecencyDecayDays: 30,
		},
		Assembly: AssemblyConfig{
			MaxTokens:              8000,
			Format:                 models.FormatMarkdown,
			DeduplicationThreshold: 0.92,
		},
		Timeouts: RAGTimeouts{
			PerSource: 5 * time.Second,
			Total:     15 * time.Second,
		},
	}
}

// DefaultKnowledgeConfig returns the built-in knowledge defaults.
func DefaultKnowledgeConfig() *KnowledgeConfig {
	return &KnowledgeConfig{
		Enabled:            true,
		BlockOnCritical:    true,
		ScoreThreshold:     0.2,
		MaxRecommendations: 5,
		MaxLearnings:       5,
		TitleThreshold:     0.8,
		KeywordThreshold:   0.5,
	}
}

// DefaultAPIConfig returns the built-in status API defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Enabled: true,
		Addr:    ":8080",
	}
}

// DefaultEventMaskingConfig returns the built-in event masking defaults.
func DefaultEventMaskingConfig() *EventMaskingConfig {
	return &EventMaskingConfig{
		Enabled:      true,
		PatternGroup: "secrets",
	}
}

// DefaultDocsConfig returns the built-in reference-doc fetching defaults.
func DefaultDocsConfig() *DocsConfig {
	return &DocsConfig{
		Enabled:     true,
		CacheTTL:    10 * time.Minute,
		MaxDocs:     3,
		MaxDocBytes: 64 * 1024,
	}
}

// DefaultCleanupConfig returns the built-in cache janitor defaults.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Enabled:  true,
		Interval: 5 * time.Minute,
	}
}

// Per-server MCP defaults applied after merge.
const (
	// DefaultMCPTimeout is the per-request JSON-RPC deadline when unset.
	DefaultMCPTimeout = 30 * time.Second
	// DefaultMaxReconnectAttempts caps the reconnect backoff loop when unset.
	DefaultMaxReconnectAttempts = 5
)

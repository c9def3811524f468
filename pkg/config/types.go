// Package config loads, merges, validates, and exposes the tamma
// configuration. A single tamma.yaml (plus an optional .env) in the config
// directory drives every subsystem; unknown keys are rejected at load time.
package config

import (
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Config is the fully resolved configuration, ready for use.
type Config struct {
	configDir string

	Agent         *AgentConfig               `yaml:"agent"`
	Engine        *EngineConfig              `yaml:"engine"`
	Platform      *PlatformConfig            `yaml:"platform"`
	Aggregator    *AggregatorConfig          `yaml:"aggregator"`
	RAG           *RAGConfig                 `yaml:"rag"`
	Knowledge     *KnowledgeConfig           `yaml:"knowledge"`
	MCPServers    map[string]MCPServerConfig `yaml:"mcp_servers"`
	API           *APIConfig                 `yaml:"api"`
	Masking       *EventMaskingConfig        `yaml:"masking"`
	Docs          *DocsConfig                `yaml:"docs"`
	Notifications *NotificationsConfig       `yaml:"notifications"`
	Cleanup       *CleanupConfig             `yaml:"cleanup"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// MCPServerIDs returns the configured MCP server names, in no particular order.
func (c *Config) MCPServerIDs() []string {
	ids := make([]string, 0, len(c.MCPServers))
	for id := range c.MCPServers {
		ids = append(ids, id)
	}
	return ids
}

// AgentConfig configures the coding subprocess provider.
type AgentConfig struct {
	// CLIPath is the coding CLI binary. Overridable via TAMMA_AGENT_CLI.
	CLIPath string `yaml:"cli_path"`
	// AgentType names the role permission sets are resolved for.
	AgentType string `yaml:"agent_type"`
	// Model passed to the CLI via --model.
	Model string `yaml:"model"`
	// MaxBudgetUSD caps the per-task spend, passed via --max-budget-usd.
	MaxBudgetUSD float64 `yaml:"max_budget_usd"`
	// AllowedTools is joined with commas into --allowedTools.
	AllowedTools []string `yaml:"allowed_tools"`
	// PermissionMode: "ask" or "bypassPermissions".
	PermissionMode PermissionMode `yaml:"permission_mode"`
	// TaskTimeout bounds a single subprocess run.
	TaskTimeout time.Duration `yaml:"task_timeout"`
	// DisposeGracePeriod is how long Dispose waits before terminating a
	// live subprocess.
	DisposeGracePeriod time.Duration `yaml:"dispose_grace_period"`
}

// EngineConfig configures the issue-to-merge state machine.
type EngineConfig struct {
	// PollInterval is the pause between engine iterations in `run` mode.
	PollInterval time.Duration `yaml:"poll_interval"`
	// WorkingDirectory is the workspace the coding subprocess runs in.
	WorkingDirectory string `yaml:"working_directory"`
	// MaxRetries bounds supervisor implementation retries.
	MaxRetries int `yaml:"max_retries"`
	// ApprovalMode: "auto" or "manual".
	ApprovalMode ApprovalMode `yaml:"approval_mode"`
	// MergeMethod used when CI succeeds.
	MergeMethod models.MergeMethod `yaml:"merge_method"`
	// CIPollInterval is the pause between CI status polls.
	CIPollInterval time.Duration `yaml:"ci_poll_interval"`
	// CITimeout is the wall-clock deadline for CI to finish.
	CITimeout time.Duration `yaml:"ci_timeout"`
	// DryRun disables all platform mutations.
	DryRun bool `yaml:"dry_run"`
	// AutoApproveLowRisk lets the supervisor skip approval for low-risk plans.
	AutoApproveLowRisk bool `yaml:"auto_approve_low_risk"`
	// HighRiskPatterns are file globs that classify a plan as high risk.
	HighRiskPatterns []string `yaml:"high_risk_patterns"`
	// ReviewThreshold is the minimum review score (0..1) that avoids a
	// re-implementation pass.
	ReviewThreshold float64 `yaml:"review_threshold"`
}

// PlatformConfig configures the git platform client.
type PlatformConfig struct {
	// BaseURL of the platform REST API.
	BaseURL string `yaml:"base_url"`
	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`
	Owner    string `yaml:"owner"`
	Repo     string `yaml:"repo"`
	// IssueLabels: an issue qualifies only when it carries all of these.
	IssueLabels []string `yaml:"issue_labels"`
	// ExcludeLabels: an issue is skipped when it carries any of these.
	ExcludeLabels []string `yaml:"exclude_labels"`
	// BotUsername, when set, is assigned to picked issues.
	BotUsername string `yaml:"bot_username"`
	// PRLabels are applied to every opened pull request.
	PRLabels []string `yaml:"pr_labels"`
	// DefaultBranch is the base for feature branches and pull requests.
	DefaultBranch string `yaml:"default_branch"`
	// RetryAttempts bounds rate-limit retries per call.
	RetryAttempts int `yaml:"retry_attempts"`
}

// SourceCaps bounds one retrieval source.
type SourceCaps struct {
	Enabled   *bool         `yaml:"enabled,omitempty"`
	MaxChunks int           `yaml:"max_chunks"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CachingConfig configures the aggregator result cache.
type CachingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// BudgetConfig bounds context assembly.
type BudgetConfig struct {
	DefaultMaxTokens int `yaml:"default_max_tokens"`
	ReservedTokens   int `yaml:"reserved_tokens"`
	MinChunkTokens   int `yaml:"min_chunk_tokens"`
	MaxChunkTokens   int `yaml:"max_chunk_tokens"`
}

// DedupConfig configures the three-phase deduplication pass.
type DedupConfig struct {
	Enabled             bool    `yaml:"enabled"`
	UseContentHash      bool    `yaml:"use_content_hash"`
	UseSemantic         bool    `yaml:"use_semantic"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// AggregatorConfig configures the context aggregator.
type AggregatorConfig struct {
	Sources       map[models.SourceKind]SourceCaps `yaml:"sources"`
	Caching       CachingConfig                    `yaml:"caching"`
	Budget        BudgetConfig                     `yaml:"budget"`
	Deduplication DedupConfig                      `yaml:"deduplication"`
}

// RankingConfig configures the RAG ranking core.
type RankingConfig struct {
	FusionMethod     FusionMethod `yaml:"fusion_method"`
	RRFK             float64      `yaml:"rrf_k"`
	MMRLambda        float64      `yaml:"mmr_lambda"`
	RecencyBoost     float64      `yaml:"recency_boost"`
	RecencyDecayDays float64      `yaml:"recency_decay_days"`
}

// AssemblyConfig configures RAG result assembly.
type AssemblyConfig struct {
	MaxTokens              int                 `yaml:"max_tokens"`
	Format                 models.OutputFormat `yaml:"format"`
	IncludeScores          bool                `yaml:"include_scores"`
	DeduplicationThreshold float64             `yaml:"deduplication_threshold"`
}

// RAGTimeouts bounds RAG retrieval.
type RAGTimeouts struct {
	PerSource time.Duration `yaml:"per_source"`
	Total     time.Duration `yaml:"total"`
}

// RAGConfig configures the RAG pipeline.
type RAGConfig struct {
	Ranking  RankingConfig  `yaml:"ranking"`
	Assembly AssemblyConfig `yaml:"assembly"`
	Timeouts RAGTimeouts    `yaml:"timeouts"`
}

// KnowledgeConfig configures the pre-task checker and duplicate detector.
type KnowledgeConfig struct {
	Enabled bool `yaml:"enabled"`
	// BlockOnCritical turns critical prohibitions into blockers.
	BlockOnCritical bool `yaml:"block_on_critical"`
	// ScoreThreshold drops entries whose combined match score falls below it.
	ScoreThreshold     float64 `yaml:"score_threshold"`
	MaxRecommendations int     `yaml:"max_recommendations"`
	MaxLearnings       int     `yaml:"max_learnings"`
	// TitleThreshold is the Dice-bigram similarity above which a learning
	// title marks a duplicate.
	TitleThreshold float64 `yaml:"title_threshold"`
	// KeywordThreshold is the Jaccard overlap used in the mid-band.
	KeywordThreshold float64 `yaml:"keyword_threshold"`
}

// MCPServerConfig describes one external MCP tool server.
type MCPServerConfig struct {
	Transport TransportType     `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	// Timeout is the per-request JSON-RPC deadline.
	Timeout          time.Duration `yaml:"timeout"`
	ReconnectOnError bool          `yaml:"reconnect_on_error"`
	// MaxReconnectAttempts caps the backoff loop; 0 means the default (5).
	MaxReconnectAttempts int  `yaml:"max_reconnect_attempts"`
	RateLimitRPM         int  `yaml:"rate_limit_rpm"`
	Sandboxed            bool `yaml:"sandboxed"`
	// DataMasking masks secrets in this server's tool results and
	// resource content before they reach the context pipeline.
	DataMasking *MaskingConfig `yaml:"data_masking,omitempty"`
}

// MaskingConfig enables secret masking for one MCP server. Pattern and
// group names refer to the masking package's built-in library.
type MaskingConfig struct {
	Enabled        bool            `yaml:"enabled"`
	PatternGroups  []string        `yaml:"pattern_groups,omitempty"`
	Patterns       []string        `yaml:"patterns,omitempty"`
	CustomPatterns []CustomPattern `yaml:"custom_patterns,omitempty"`
}

// CustomPattern is one user-supplied masking regex.
type CustomPattern struct {
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
	Description string `yaml:"description,omitempty"`
}

// EventMaskingConfig masks secrets in event text before publication.
type EventMaskingConfig struct {
	Enabled bool `yaml:"enabled"`
	// PatternGroup names the built-in group swept over event text.
	PatternGroup string `yaml:"pattern_group"`
}

// DocsConfig configures reference-doc fetching during issue analysis.
type DocsConfig struct {
	Enabled bool `yaml:"enabled"`
	// AllowedDomains restricts fetched URLs; empty allows github.com only.
	AllowedDomains []string `yaml:"allowed_domains,omitempty"`
	// CacheTTL bounds how long fetched docs are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// MaxDocs caps how many linked docs one issue may pull in.
	MaxDocs int `yaml:"max_docs"`
	// MaxDocBytes truncates any single fetched doc.
	MaxDocBytes int `yaml:"max_doc_bytes"`
}

// NotificationsConfig configures outbound notifications.
type NotificationsConfig struct {
	Slack *SlackConfig `yaml:"slack,omitempty"`
}

// SlackConfig points the notifier at one channel. The token is read from
// TokenEnv at startup and never stored in configuration.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env"`
	Channel  string `yaml:"channel"`
}

// CleanupConfig configures the cache janitor. Every in-memory cache expires
// entries lazily on read; the janitor bounds how long dead entries linger
// when nothing reads them.
type CleanupConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between purge sweeps.
	Interval time.Duration `yaml:"interval"`
}

// APIConfig configures the operational status server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

package config

import (
	"errors"
	"fmt"
	"regexp"
)

// Validator performs comprehensive validation on loaded configuration.
type Validator struct {
	cfg    *Config
	errors []error
}

// NewValidator creates a validator for the given config.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll validates every section and returns all collected errors joined.
func (v *Validator) ValidateAll() error {
	v.validateAgent()
	v.validateEngine()
	v.validatePlatform()
	v.validateAggregator()
	v.validateRAG()
	v.validateKnowledge()
	v.validateMCPServers()
	v.validateDocs()
	v.validateNotifications()
	v.validateCleanup()

	if len(v.errors) > 0 {
		return errors.Join(v.errors...)
	}
	return nil
}

func (v *Validator) addError(section, field string, err error) {
	v.errors = append(v.errors, NewValidationError(section, field, err))
}

func (v *Validator) validateAgent() {
	a := v.cfg.Agent
	if a.CLIPath == "" {
		v.addError("agent", "cli_path", ErrMissingRequiredField)
	}
	if a.AgentType == "" {
		v.addError("agent", "agent_type", ErrMissingRequiredField)
	}
	if a.MaxBudgetUSD <= 0 {
		v.addError("agent", "max_budget_usd", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if !a.PermissionMode.IsValid() {
		v.addError("agent", "permission_mode", fmt.Errorf("%w: %q", ErrInvalidValue, a.PermissionMode))
	}
}

func (v *Validator) validateEngine() {
	e := v.cfg.Engine
	if e.PollInterval <= 0 {
		v.addError("engine", "poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.MaxRetries < 0 {
		v.addError("engine", "max_retries", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if !e.ApprovalMode.IsValid() {
		v.addError("engine", "approval_mode", fmt.Errorf("%w: %q", ErrInvalidValue, e.ApprovalMode))
	}
	if !e.MergeMethod.IsValid() {
		v.addError("engine", "merge_method", fmt.Errorf("%w: %q", ErrInvalidValue, e.MergeMethod))
	}
	if e.CIPollInterval <= 0 {
		v.addError("engine", "ci_poll_interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if e.ReviewThreshold < 0 || e.ReviewThreshold > 1 {
		v.addError("engine", "review_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
}

func (v *Validator) validatePlatform() {
	p := v.cfg.Platform
	if p.Owner == "" {
		v.addError("platform", "owner", ErrMissingRequiredField)
	}
	if p.Repo == "" {
		v.addError("platform", "repo", ErrMissingRequiredField)
	}
	if p.TokenEnv == "" {
		v.addError("platform", "token_env", ErrMissingRequiredField)
	}
	if p.RetryAttempts <= 0 {
		v.addError("platform", "retry_attempts", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	for _, label := range p.IssueLabels {
		for _, excl := range p.ExcludeLabels {
			if label == excl {
				v.addError("platform", "exclude_labels",
					fmt.Errorf("%w: label %q is both included and excluded", ErrInvalidValue, label))
			}
		}
	}
}

func (v *Validator) validateAggregator() {
	a := v.cfg.Aggregator
	if a.Budget.DefaultMaxTokens <= 0 {
		v.addError("aggregator", "budget.default_max_tokens", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if a.Budget.ReservedTokens < 0 {
		v.addError("aggregator", "budget.reserved_tokens", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if a.Budget.ReservedTokens >= a.Budget.DefaultMaxTokens {
		v.addError("aggregator", "budget.reserved_tokens",
			fmt.Errorf("%w: must be smaller than default_max_tokens", ErrInvalidValue))
	}
	if a.Caching.Enabled && a.Caching.MaxEntries <= 0 {
		v.addError("aggregator", "caching.max_entries", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if t := a.Deduplication.SimilarityThreshold; t < 0 || t > 1 {
		v.addError("aggregator", "deduplication.similarity_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	for kind, caps := range a.Sources {
		if !kind.IsValid() {
			v.addError("aggregator", "sources", fmt.Errorf("%w: unknown source %q", ErrInvalidValue, kind))
		}
		if caps.MaxChunks <= 0 {
			v.addError("aggregator", fmt.Sprintf("sources.%s.max_chunks", kind),
				fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
	}
}

func (v *Validator) validateRAG() {
	r := v.cfg.RAG
	if !r.Ranking.FusionMethod.IsValid() {
		v.addError("rag", "ranking.fusion_method", fmt.Errorf("%w: %q", ErrInvalidValue, r.Ranking.FusionMethod))
	}
	if r.Ranking.RRFK <= 0 {
		v.addError("rag", "ranking.rrf_k", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if l := r.Ranking.MMRLambda; l < 0 || l > 1 {
		v.addError("rag", "ranking.mmr_lambda", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if !r.Assembly.Format.IsValid() {
		v.addError("rag", "assembly.format", fmt.Errorf("%w: %q", ErrInvalidValue, r.Assembly.Format))
	}
}

func (v *Validator) validateKnowledge() {
	k := v.cfg.Knowledge
	if t := k.ScoreThreshold; t < 0 || t > 1 {
		v.addError("knowledge", "score_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if t := k.TitleThreshold; t < 0 || t > 1 {
		v.addError("knowledge", "title_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if t := k.KeywordThreshold; t < 0 || t > 1 {
		v.addError("knowledge", "keyword_threshold", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
}

func (v *Validator) validateMCPServers() {
	for id, server := range v.cfg.MCPServers {
		section := fmt.Sprintf("mcp_servers.%s", id)
		if !server.Transport.IsValid() {
			v.addError(section, "transport", fmt.Errorf("%w: %q", ErrInvalidValue, server.Transport))
			continue
		}
		switch server.Transport {
		case TransportTypeStdio:
			if server.Command == "" {
				v.addError(section, "command", fmt.Errorf("%w: stdio transport requires command", ErrMissingRequiredField))
			}
		case TransportTypeSSE, TransportTypeWebSocket:
			if server.URL == "" {
				v.addError(section, "url", fmt.Errorf("%w: %s transport requires url", ErrMissingRequiredField, server.Transport))
			}
		}
		if server.Timeout <= 0 {
			v.addError(section, "timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
		}
		if server.MaxReconnectAttempts < 0 {
			v.addError(section, "max_reconnect_attempts", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
		}
		if dm := server.DataMasking; dm != nil && dm.Enabled {
			for i, custom := range dm.CustomPatterns {
				if _, err := regexp.Compile(custom.Pattern); err != nil {
					v.addError(section, fmt.Sprintf("data_masking.custom_patterns[%d]", i),
						fmt.Errorf("%w: %v", ErrInvalidValue, err))
				}
			}
		}
	}
}

func (v *Validator) validateDocs() {
	d := v.cfg.Docs
	if d == nil || !d.Enabled {
		return
	}
	if d.CacheTTL <= 0 {
		v.addError("docs", "cache_ttl", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if d.MaxDocs <= 0 {
		v.addError("docs", "max_docs", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if d.MaxDocBytes <= 0 {
		v.addError("docs", "max_doc_bytes", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
}

func (v *Validator) validateNotifications() {
	n := v.cfg.Notifications
	if n == nil || n.Slack == nil || !n.Slack.Enabled {
		return
	}
	if n.Slack.TokenEnv == "" {
		v.addError("notifications.slack", "token_env", ErrMissingRequiredField)
	}
	if n.Slack.Channel == "" {
		v.addError("notifications.slack", "channel", ErrMissingRequiredField)
	}
}

func (v *Validator) validateCleanup() {
	c := v.cfg.Cleanup
	if c == nil || !c.Enabled {
		return
	}
	if c.Interval <= 0 {
		v.addError("cleanup", "interval", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
}

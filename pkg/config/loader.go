package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// configFileName is the single configuration file loaded from the config dir.
const configFileName = "tamma.yaml"

// Initialize loads, merges, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Read tamma.yaml from configDir
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Strict-decode YAML (unknown keys are rejected)
//  4. Merge user values over built-in defaults
//  5. Apply per-server MCP defaults
//  6. Validate everything
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"mcp_servers", len(cfg.MCPServers),
		"approval_mode", cfg.Engine.ApprovalMode,
		"repo", cfg.Platform.Owner+"/"+cfg.Platform.Repo)
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	path := filepath.Join(configDir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(configFileName, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return nil, NewLoadError(configFileName, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, NewLoadError(configFileName, err)
	}
	cfg.configDir = configDir
	return cfg, nil
}

// Parse decodes raw YAML into a Config with defaults applied. Exported for
// tests and for callers that hold config bytes already.
func Parse(data []byte) (*Config, error) {
	data = ExpandEnv(data)

	var user Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	// Every configuration structure is closed: unknown keys are load errors.
	dec.KnownFields(true)
	if err := dec.Decode(&user); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	cfg, err := applyDefaults(&user)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults merges user-provided sections over built-in defaults.
// Non-zero user values override; unset values keep the default.
func applyDefaults(user *Config) (*Config, error) {
	cfg := &Config{
		Agent:      DefaultAgentConfig(),
		Engine:     DefaultEngineConfig(),
		Platform:   DefaultPlatformConfig(),
		Aggregator: DefaultAggregatorConfig(),
		RAG:        DefaultRAGConfig(),
		Knowledge:  DefaultKnowledgeConfig(),
		API:        DefaultAPIConfig(),
		Masking:    DefaultEventMaskingConfig(),
		Docs:       DefaultDocsConfig(),
		Cleanup:    DefaultCleanupConfig(),
		MCPServers: make(map[string]MCPServerConfig),
	}

	merge := func(dst, src any) error {
		if src == nil {
			return nil
		}
		return mergo.Merge(dst, src, mergo.WithOverride)
	}

	if user.Agent != nil {
		if err := merge(cfg.Agent, user.Agent); err != nil {
			return nil, fmt.Errorf("failed to merge agent config: %w", err)
		}
	}
	if user.Engine != nil {
		if err := merge(cfg.Engine, user.Engine); err != nil {
			return nil, fmt.Errorf("failed to merge engine config: %w", err)
		}
	}
	if user.Platform != nil {
		if err := merge(cfg.Platform, user.Platform); err != nil {
			return nil, fmt.Errorf("failed to merge platform config: %w", err)
		}
	}
	if user.Aggregator != nil {
		if err := merge(cfg.Aggregator, user.Aggregator); err != nil {
			return nil, fmt.Errorf("failed to merge aggregator config: %w", err)
		}
	}
	if user.RAG != nil {
		if err := merge(cfg.RAG, user.RAG); err != nil {
			return nil, fmt.Errorf("failed to merge rag config: %w", err)
		}
	}
	if user.Knowledge != nil {
		if err := merge(cfg.Knowledge, user.Knowledge); err != nil {
			return nil, fmt.Errorf("failed to merge knowledge config: %w", err)
		}
	}
	if user.API != nil {
		if err := merge(cfg.API, user.API); err != nil {
			return nil, fmt.Errorf("failed to merge api config: %w", err)
		}
	}
	// Masking, docs, and cleanup replace rather than merge: their enabled
	// flags must honor an explicit false, which a zero-value merge would
	// swallow.
	if user.Masking != nil {
		cfg.Masking = user.Masking
		if cfg.Masking.PatternGroup == "" {
			cfg.Masking.PatternGroup = DefaultEventMaskingConfig().PatternGroup
		}
	}
	if user.Docs != nil {
		defaults := DefaultDocsConfig()
		if user.Docs.CacheTTL <= 0 {
			user.Docs.CacheTTL = defaults.CacheTTL
		}
		if user.Docs.MaxDocs <= 0 {
			user.Docs.MaxDocs = defaults.MaxDocs
		}
		if user.Docs.MaxDocBytes <= 0 {
			user.Docs.MaxDocBytes = defaults.MaxDocBytes
		}
		cfg.Docs = user.Docs
	}
	if user.Cleanup != nil {
		if user.Cleanup.Interval <= 0 {
			user.Cleanup.Interval = DefaultCleanupConfig().Interval
		}
		cfg.Cleanup = user.Cleanup
	}
	// Notifications have no defaults: absent means disabled.
	cfg.Notifications = user.Notifications

	// MCP servers are taken as-is from user config, then normalised.
	for id, server := range user.MCPServers {
		if server.Timeout == 0 {
			server.Timeout = DefaultMCPTimeout
		}
		if server.MaxReconnectAttempts == 0 {
			server.MaxReconnectAttempts = DefaultMaxReconnectAttempts
		}
		cfg.MCPServers[id] = server
	}

	// Environment overrides applied after merge.
	if cli := os.Getenv("TAMMA_AGENT_CLI"); cli != "" {
		cfg.Agent.CLIPath = cli
	}
	if wd := os.Getenv("TAMMA_WORKDIR"); wd != "" {
		cfg.Engine.WorkingDirectory = wd
	}

	return cfg, nil
}

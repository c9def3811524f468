package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/models"
)

const minimalYAML = `
platform:
  owner: tamma-ai
  repo: demo
  issue_labels: [tamma]
`

func TestParse_DefaultsApplied(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.Agent.CLIPath)
	assert.Equal(t, ApprovalModeAuto, cfg.Engine.ApprovalMode)
	assert.Equal(t, models.MergeMethodSquash, cfg.Engine.MergeMethod)
	assert.Equal(t, 30*time.Second, cfg.Engine.CIPollInterval)
	assert.Equal(t, "https://api.github.com", cfg.Platform.BaseURL)
	assert.Equal(t, "GITHUB_TOKEN", cfg.Platform.TokenEnv)
	assert.Equal(t, 8000, cfg.Aggregator.Budget.DefaultMaxTokens)
	assert.Equal(t, float64(60), cfg.RAG.Ranking.RRFK)
	assert.True(t, cfg.Knowledge.BlockOnCritical)
}

func TestParse_UserOverrides(t *testing.T) {
	yaml := minimalYAML + `
engine:
  approval_mode: manual
  max_retries: 5
agent:
  model: opus
  max_budget_usd: 12.5
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, ApprovalModeManual, cfg.Engine.ApprovalMode)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, "opus", cfg.Agent.Model)
	assert.Equal(t, 12.5, cfg.Agent.MaxBudgetUSD)
	// Untouched defaults survive the merge.
	assert.Equal(t, 60*time.Second, cfg.Engine.PollInterval)
}

func TestParse_UnknownKeysRejected(t *testing.T) {
	yaml := minimalYAML + `
engine:
  no_such_option: true
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TAMMA_TEST_OWNER", "expanded-org")

	yaml := `
platform:
  owner: "{{.TAMMA_TEST_OWNER}}"
  repo: demo
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)
	assert.Equal(t, "expanded-org", cfg.Platform.Owner)
}

func TestParse_MCPServerDefaults(t *testing.T) {
	yaml := minimalYAML + `
mcp_servers:
  files:
    transport: stdio
    command: mcp-files
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	server, ok := cfg.MCPServers["files"]
	require.True(t, ok)
	assert.Equal(t, DefaultMCPTimeout, server.Timeout)
	assert.Equal(t, DefaultMaxReconnectAttempts, server.MaxReconnectAttempts)
}

func TestParse_MaskingAndDocsSections(t *testing.T) {
	yaml := minimalYAML + `
masking:
  enabled: false
docs:
  enabled: true
  allowed_domains: [github.com, docs.example.org]
  max_docs: 5
mcp_servers:
  files:
    transport: stdio
    command: mcp-files
    data_masking:
      enabled: true
      pattern_groups: [secrets]
      custom_patterns:
        - pattern: 'ticket-[0-9]+'
          replacement: '__MASKED_TICKET__'
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	// Explicit false survives; the section replaces the default wholesale.
	assert.False(t, cfg.Masking.Enabled)
	assert.True(t, cfg.Docs.Enabled)
	assert.Equal(t, 5, cfg.Docs.MaxDocs)
	assert.Equal(t, 10*time.Minute, cfg.Docs.CacheTTL)

	dm := cfg.MCPServers["files"].DataMasking
	require.NotNil(t, dm)
	assert.True(t, dm.Enabled)
	assert.Equal(t, []string{"secrets"}, dm.PatternGroups)
	require.Len(t, dm.CustomPatterns, 1)
	assert.Equal(t, "__MASKED_TICKET__", dm.CustomPatterns[0].Replacement)
}

func TestInitialize_MissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_ValidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(minimalYAML), 0o600))

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ConfigDir())
	assert.Equal(t, []string{"tamma"}, cfg.Platform.IssueLabels)
}

func TestValidator_CollectsErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing owner",
			mutate:  func(c *Config) { c.Platform.Owner = "" },
			wantErr: "owner",
		},
		{
			name:    "invalid approval mode",
			mutate:  func(c *Config) { c.Engine.ApprovalMode = "sometimes" },
			wantErr: "approval_mode",
		},
		{
			name:    "reserved tokens exceed budget",
			mutate:  func(c *Config) { c.Aggregator.Budget.ReservedTokens = 9999 },
			wantErr: "reserved_tokens",
		},
		{
			name: "stdio server without command",
			mutate: func(c *Config) {
				c.MCPServers["bad"] = MCPServerConfig{Transport: TransportTypeStdio, Timeout: time.Second}
			},
			wantErr: "command",
		},
		{
			name: "label both included and excluded",
			mutate: func(c *Config) {
				c.Platform.IssueLabels = []string{"tamma"}
				c.Platform.ExcludeLabels = []string{"tamma"}
			},
			wantErr: "included and excluded",
		},
		{
			name: "slack enabled without channel",
			mutate: func(c *Config) {
				c.Notifications = &NotificationsConfig{
					Slack: &SlackConfig{Enabled: true, TokenEnv: "SLACK_TOKEN"},
				}
			},
			wantErr: "channel",
		},
		{
			name: "invalid custom masking regex",
			mutate: func(c *Config) {
				c.MCPServers["bad"] = MCPServerConfig{
					Transport: TransportTypeStdio,
					Command:   "mcp-bad",
					Timeout:   time.Second,
					DataMasking: &MaskingConfig{
						Enabled:        true,
						CustomPatterns: []CustomPattern{{Pattern: "(unclosed"}},
					},
				}
			},
			wantErr: "custom_patterns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(minimalYAML))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = NewValidator(cfg).ValidateAll()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidator_ValidConfigPasses(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)
	assert.NoError(t, NewValidator(cfg).ValidateAll())
}

package permissions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sets:
  - agent_type: engineer
    tools:
      deny: [WebSearch]
    files:
      deny: ["**/secrets/**"]
      require_approval: ["**/auth/**"]
    git:
      require_approval: [merge]
    limits:
      max_cost_usd: 2.5
      max_file_changes: 20
  - agent_type: engineer
    project_id: acme/api
    files:
      allow: ["internal/**"]
`), 0o644))

	sets, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, "engineer", sets[0].AgentType)
	assert.Empty(t, sets[0].ProjectID)
	assert.Equal(t, []string{"WebSearch"}, sets[0].Tools.Deny)
	assert.Equal(t, []string{"**/auth/**"}, sets[0].Files.RequireApproval)
	assert.Equal(t, []string{"merge"}, sets[0].Git.RequireApproval)
	assert.Equal(t, 2.5, sets[0].Limits.MaxCostUSD)
	assert.Equal(t, 20, sets[0].Limits.MaxFileChanges)

	assert.Equal(t, "acme/api", sets[1].ProjectID)
	assert.Equal(t, []string{"internal/**"}, sets[1].Files.Allow)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	sets, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestLoad_RejectsMissingAgentType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sets:
  - project_id: acme/api
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agent_type")
}

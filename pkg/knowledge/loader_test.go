package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/models"
)

func TestLoadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - id: p-1
    kind: prohibition
    priority: critical
    title: never rotate signing keys automatically
    keywords: [signing, keys]
    patterns: ["**/crypto/**"]
  - id: l-1
    kind: learning
    priority: medium
    title: flaky auth test needs retry
    projectid: proj-a
`), 0o644))

	entries, err := LoadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.KnowledgeProhibition, entries[0].Kind)
	assert.Equal(t, []string{"signing", "keys"}, entries[0].Keywords)
	assert.Equal(t, "proj-a", entries[1].ProjectID)
}

func TestLoadEntries_MissingFileIsEmpty(t *testing.T) {
	entries, err := LoadEntries(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadEntries_RejectsInvalidKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - id: x-1
    kind: superstition
    title: nope
`), 0o644))

	_, err := LoadEntries(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid kind")
}

package knowledge

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tamma-ai/tamma/pkg/models"
)

// LoadEntries reads seed knowledge entries from a YAML file. A missing file
// is not an error; teams start with an empty base.
func LoadEntries(path string) ([]models.KnowledgeEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read knowledge file %s: %w", path, err)
	}

	var doc struct {
		Entries []models.KnowledgeEntry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge file %s: %w", path, err)
	}

	for i, entry := range doc.Entries {
		if entry.ID == "" {
			return nil, fmt.Errorf("knowledge file %s: entry %d has no id", path, i)
		}
		if !entry.Kind.IsValid() {
			return nil, fmt.Errorf("knowledge file %s: entry %q has invalid kind %q", path, entry.ID, entry.Kind)
		}
	}
	return doc.Entries, nil
}

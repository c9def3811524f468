package permissions

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAML document shapes. Kept separate from the core types so the file format
// can use snake_case keys without tagging the domain structs.
type rulesDoc struct {
	Allow           []string `yaml:"allow"`
	Deny            []string `yaml:"deny"`
	RequireApproval []string `yaml:"require_approval"`
}

type limitsDoc struct {
	MaxCostUSD     float64 `yaml:"max_cost_usd"`
	MaxDurationMs  int64   `yaml:"max_duration_ms"`
	MaxFileChanges int     `yaml:"max_file_changes"`
}

type setDoc struct {
	AgentType string    `yaml:"agent_type"`
	ProjectID string    `yaml:"project_id"`
	Tools     rulesDoc  `yaml:"tools"`
	Files     rulesDoc  `yaml:"files"`
	Commands  rulesDoc  `yaml:"commands"`
	APIs      rulesDoc  `yaml:"apis"`
	Git       rulesDoc  `yaml:"git"`
	Limits    limitsDoc `yaml:"limits"`
}

// Load reads permission sets from a YAML file. A missing file is not an
// error; without sets the gate stays uninstalled.
func Load(path string) ([]*PermissionSet, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read permissions file %s: %w", path, err)
	}

	var doc struct {
		Sets []setDoc `yaml:"sets"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse permissions file %s: %w", path, err)
	}

	sets := make([]*PermissionSet, 0, len(doc.Sets))
	for i, sd := range doc.Sets {
		if sd.AgentType == "" {
			return nil, fmt.Errorf("permissions file %s: set %d has no agent_type", path, i)
		}
		sets = append(sets, &PermissionSet{
			AgentType: sd.AgentType,
			ProjectID: sd.ProjectID,
			Tools:     CategoryRules(sd.Tools),
			Files:     CategoryRules(sd.Files),
			Commands:  CategoryRules(sd.Commands),
			APIs:      CategoryRules(sd.APIs),
			Git:       CategoryRules(sd.Git),
			Limits: ResourceLimits{
				MaxCostUSD:     sd.Limits.MaxCostUSD,
				MaxDurationMs:  sd.Limits.MaxDurationMs,
				MaxFileChanges: sd.Limits.MaxFileChanges,
			},
		})
	}
	return sets, nil
}

// Package permissions resolves and evaluates per-agent permission sets.
// Sets are fetched through the store port and cached with a TTL per
// (agentType, projectID) pair.
package permissions

import (
	"context"

	"github.com/bmatcuk/doublestar"
)

// Category names one guarded resource class.
type Category string

// Guarded categories.
const (
	CategoryTools    Category = "tools"
	CategoryFiles    Category = "files"
	CategoryCommands Category = "commands"
	CategoryAPIs     Category = "apis"
	CategoryGit      Category = "git"
)

// Decision is the gate's verdict for one operation.
type Decision string

// Decisions, strongest first: an explicit deny always wins, a
// require-approval match defers to a human, otherwise the allow list rules.
const (
	DecisionDeny            Decision = "deny"
	DecisionRequireApproval Decision = "require_approval"
	DecisionAllow           Decision = "allow"
)

// CategoryRules are the per-category pattern lists. Patterns are doublestar
// globs; an empty Allow list allows everything not denied.
type CategoryRules struct {
	Allow           []string `json:"allow,omitempty"`
	Deny            []string `json:"deny,omitempty"`
	RequireApproval []string `json:"requireApproval,omitempty"`
}

// ResourceLimits bound one agent's task execution.
type ResourceLimits struct {
	MaxCostUSD     float64 `json:"maxCostUsd,omitempty"`
	MaxDurationMs  int64   `json:"maxDurationMs,omitempty"`
	MaxFileChanges int     `json:"maxFileChanges,omitempty"`
}

// PermissionSet is the resolved permission surface for one agent type in
// one project.
type PermissionSet struct {
	AgentType string         `json:"agentType"`
	ProjectID string         `json:"projectId,omitempty"`
	Tools     CategoryRules  `json:"tools,omitempty"`
	Files     CategoryRules  `json:"files,omitempty"`
	Commands  CategoryRules  `json:"commands,omitempty"`
	APIs      CategoryRules  `json:"apis,omitempty"`
	Git       CategoryRules  `json:"git,omitempty"`
	Limits    ResourceLimits `json:"limits,omitempty"`
}

// Store is the persistence port permission sets are fetched through.
type Store interface {
	Fetch(ctx context.Context, agentType, projectID string) (*PermissionSet, error)
}

// Check evaluates one operation name against a category. Deny wins over
// require-approval, which wins over allow. With a non-empty Allow list the
// name must match an allow pattern; with an empty one everything not denied
// is allowed.
func (p *PermissionSet) Check(category Category, name string) Decision {
	rules := p.rules(category)
	if matchesAny(rules.Deny, name) {
		return DecisionDeny
	}
	if matchesAny(rules.RequireApproval, name) {
		return DecisionRequireApproval
	}
	if len(rules.Allow) == 0 || matchesAny(rules.Allow, name) {
		return DecisionAllow
	}
	return DecisionDeny
}

func (p *PermissionSet) rules(category Category) CategoryRules {
	switch category {
	case CategoryTools:
		return p.Tools
	case CategoryFiles:
		return p.Files
	case CategoryCommands:
		return p.Commands
	case CategoryAPIs:
		return p.APIs
	case CategoryGit:
		return p.Git
	default:
		return CategoryRules{}
	}
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if pattern == name {
			return true
		}
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

package models

// FileAction describes what a planned change does to a file.
type FileAction string

// File action constants.
const (
	FileActionCreate FileAction = "create"
	FileActionModify FileAction = "modify"
	FileActionDelete FileAction = "delete"
)

// IsValid checks if the file action is valid.
func (a FileAction) IsValid() bool {
	return a == FileActionCreate || a == FileActionModify || a == FileActionDelete
}

// Complexity is the estimated implementation complexity of a plan.
type Complexity string

// Complexity constants.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IsValid checks if the complexity is valid.
func (c Complexity) IsValid() bool {
	return c == ComplexityLow || c == ComplexityMedium || c == ComplexityHigh
}

// FileChange is a single planned file modification, ordered within the plan.
type FileChange struct {
	Path        string     `json:"path"`
	Action      FileAction `json:"action"`
	Description string     `json:"description"`
}

// DevelopmentPlan is the structured change plan produced once per issue by
// the agent provider. Immutable after creation.
type DevelopmentPlan struct {
	IssueNumber         int          `json:"issueNumber"`
	Summary             string       `json:"summary"`
	Approach            string       `json:"approach"`
	FileChanges         []FileChange `json:"fileChanges"`
	TestingStrategy     string       `json:"testingStrategy"`
	EstimatedComplexity Complexity   `json:"estimatedComplexity"`
	Risks               []string     `json:"risks,omitempty"`
}

// TouchedPaths returns the file paths the plan intends to change, in plan order.
func (p *DevelopmentPlan) TouchedPaths() []string {
	paths := make([]string, 0, len(p.FileChanges))
	for _, fc := range p.FileChanges {
		paths = append(paths, fc.Path)
	}
	return paths
}

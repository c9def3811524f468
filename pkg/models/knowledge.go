package models

// KnowledgeKind distinguishes the three classes of knowledge entries.
type KnowledgeKind string

// Knowledge kind constants.
const (
	KnowledgeProhibition    KnowledgeKind = "prohibition"
	KnowledgeRecommendation KnowledgeKind = "recommendation"
	KnowledgeLearning       KnowledgeKind = "learning"
)

// IsValid checks if the knowledge kind is valid.
func (k KnowledgeKind) IsValid() bool {
	return k == KnowledgeProhibition || k == KnowledgeRecommendation || k == KnowledgeLearning
}

// Priority ranks knowledge entries. Critical prohibitions become blockers
// when the checker is configured to block on critical.
type Priority string

// Priority constants.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// IsValid checks if the priority is valid.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh || p == PriorityCritical
}

// KnowledgeEntry is persisted externally; the core only consumes it through
// the knowledge store port.
type KnowledgeEntry struct {
	ID          string        `json:"id"`
	Kind        KnowledgeKind `json:"kind"`
	Priority    Priority      `json:"priority"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Keywords    []string      `json:"keywords,omitempty"`
	// Patterns are file globs matched against the paths a plan touches.
	Patterns  []string `json:"patterns,omitempty"`
	ProjectID string   `json:"projectId,omitempty"`
}

// RiskLevel classifies a plan's blast radius.
type RiskLevel string

// Risk level constants.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// IsValid checks if the risk level is valid.
func (r RiskLevel) IsValid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

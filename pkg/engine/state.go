package engine

import "github.com/tamma-ai/tamma/pkg/models"

// State is one position in the issue-to-merge pipeline.
type State string

// Engine states, in nominal transition order. Transitions are linear on
// success; on any error the engine records context and resets to IDLE.
const (
	StateIdle             State = "idle"
	StateSelectingIssue   State = "selecting_issue"
	StateAnalyzing        State = "analyzing"
	StateGeneratingPlan   State = "generating_plan"
	StateAwaitingApproval State = "awaiting_approval"
	StateCreatingBranch   State = "creating_branch"
	StateImplementing     State = "implementing"
	StateCreatingPR       State = "creating_pr"
	StateMonitoringPR     State = "monitoring_pr"
	StateCompleted        State = "completed"
	StateError            State = "error"
)

// Context is the engine's per-iteration working state. Single-writer: only
// the engine loop mutates it, and it is never shared across iterations.
type Context struct {
	State          State
	Issue          *models.Issue
	Plan           *models.DevelopmentPlan
	PR             *models.PullRequest
	Branch         string
	AgentSessionID string
}

// reset clears everything back to an idle context.
func (c *Context) reset() {
	*c = Context{State: StateIdle}
}

// Status is a read-only snapshot of the engine for the status API.
type Status struct {
	State       State  `json:"state"`
	IssueNumber int    `json:"issueNumber,omitempty"`
	IssueTitle  string `json:"issueTitle,omitempty"`
	Branch      string `json:"branch,omitempty"`
	PRNumber    int    `json:"prNumber,omitempty"`
	PRURL       string `json:"prUrl,omitempty"`
}

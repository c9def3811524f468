package events

// Typed payloads carried inside Event.Payload. Every payload includes the
// task or issue identity it belongs to so consumers can route without
// parsing the channel name.

// EngineStatePayload announces an engine state transition.
type EngineStatePayload struct {
	Type      string `json:"type"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Issue     int    `json:"issue,omitempty"`
}

// IssueSelectedPayload announces the issue the engine picked up.
type IssueSelectedPayload struct {
	Type   string `json:"type"`
	Number int    `json:"number"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
}

// PlanGeneratedPayload announces a completed development plan.
type PlanGeneratedPayload struct {
	Type       string `json:"type"`
	Issue      int    `json:"issue"`
	Summary    string `json:"summary"`
	Complexity string `json:"complexity"`
	FileCount  int    `json:"file_count"`
}

// BranchCreatedPayload announces the working branch.
type BranchCreatedPayload struct {
	Type   string `json:"type"`
	Issue  int    `json:"issue"`
	Branch string `json:"branch"`
}

// PRPayload announces pull request creation or merge.
type PRPayload struct {
	Type   string `json:"type"`
	Issue  int    `json:"issue"`
	Number int    `json:"number"`
	URL    string `json:"url,omitempty"`
}

// EngineErrorPayload announces an engine failure before the reset to idle.
type EngineErrorPayload struct {
	Type    string `json:"type"`
	Issue   int    `json:"issue,omitempty"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// EngineApprovalPayload announces a manual plan approval blocking the engine,
// and later its decision. Approved is nil while the request is pending.
type EngineApprovalPayload struct {
	Type     string `json:"type"`
	Issue    int    `json:"issue"`
	Summary  string `json:"summary,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
}

// TaskReceivedPayload announces a task entering supervision.
type TaskReceivedPayload struct {
	Type        string `json:"type"`
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	Description string `json:"description,omitempty"`
	Issue       int    `json:"issue,omitempty"`
}

// TaskStatePayload announces a supervisor state transition for one task.
type TaskStatePayload struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Retry     int    `json:"retry,omitempty"`
}

// ApprovalPayload announces an approval request or its resolution.
type ApprovalPayload struct {
	Type      string `json:"type"`
	TaskID    string `json:"task_id"`
	RiskLevel string `json:"risk_level"`
	Approved  *bool  `json:"approved,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ReviewPayload announces a completed implementation review.
type ReviewPayload struct {
	Type     string  `json:"type"`
	TaskID   string  `json:"task_id"`
	Score    float64 `json:"score"`
	Approved bool    `json:"approved"`
}

// LearningPayload announces a captured knowledge entry.
type LearningPayload struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id"`
	EntryID string `json:"entry_id"`
	Title   string `json:"title"`
}

// AgentProgressPayload is the transient per-chunk progress of a coding
// subprocess. High-frequency; not retained for catchup.
type AgentProgressPayload struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id"`
	Kind     string `json:"kind"` // "text" or "tool_use"
	Text     string `json:"text,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

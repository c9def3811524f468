// Package events provides in-process typed event delivery for the engine and
// the supervisor, plus WebSocket fan-out to observers.
//
// Producers publish typed payloads through the Publisher; the Bus fans each
// event out to in-process subscribers (bounded buffers, drop-oldest) and keeps
// a short per-channel history ring so late WebSocket subscribers can catch up.
package events

import (
	"encoding/json"
	"time"
)

// Engine lifecycle event types.
const (
	EventTypeEngineState      = "engine.state"
	EventTypeIssueSelected    = "engine.issue_selected"
	EventTypePlanGenerated    = "engine.plan_generated"
	EventTypeBranchCreated    = "engine.branch_created"
	EventTypePRCreated        = "engine.pr_created"
	EventTypePRMerged         = "engine.pr_merged"
	EventTypeEngineError      = "engine.error"
	EventTypeApprovalPending  = "engine.approval_pending"
	EventTypeApprovalDecision = "engine.approval_decision"
)

// Supervisor lifecycle event types.
const (
	EventTypeTaskReceived     = "task.received"
	EventTypeTaskState        = "task.state"
	EventTypeApprovalRequest  = "task.approval_requested"
	EventTypeApprovalResolved = "task.approval_resolved"
	EventTypeReviewCompleted  = "task.review_completed"
	EventTypeLearningCaptured = "task.learning_captured"
)

// Transient event types (high-frequency, excluded from catchup history).
const (
	EventTypeAgentProgress = "agent.progress"
)

// GlobalTasksChannel carries task-level state events for every task. The
// status API and dashboards subscribe to this for a live overview.
const GlobalTasksChannel = "tasks"

// TaskChannel returns the channel name for a specific task's events.
// Format: "task:{task_id}"
func TaskChannel(taskID string) string {
	return "task:" + taskID
}

// Event is the envelope every published payload travels in. Seq is a
// per-channel monotonic sequence number used for catchup tracking.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string  `json:"action"`             // "subscribe", "unsubscribe", "catchup", "ping"
	Channel string  `json:"channel,omitempty"`  // Channel name (e.g., "task:abc-123")
	LastSeq *uint64 `json:"last_seq,omitempty"` // For catchup
}

package events

import (
	"encoding/json"
	"log/slog"
)

// Masker redacts secrets from free-text event fields before they reach
// subscribers. Structured fields (issue numbers, states, URLs) bypass it.
type Masker interface {
	MaskEventText(text string) string
}

// Publisher wraps the bus with one method per event type. Each method fills
// in the payload's type tag, marshals it, and routes it to the right channel.
// Publishing is best-effort: a payload that fails to marshal is logged and
// dropped rather than failing the caller's state transition.
type Publisher struct {
	bus    *Bus
	masker Masker
	logger *slog.Logger
}

// NewPublisher creates a publisher over the given bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus, logger: slog.Default().With("component", "events")}
}

// SetMasker installs a masker for free-text payload fields. Must be called
// before the publisher is shared across goroutines.
func (p *Publisher) SetMasker(m Masker) {
	p.masker = m
}

func (p *Publisher) maskText(text string) string {
	if p.masker == nil {
		return text
	}
	return p.masker.MaskEventText(text)
}

// Bus exposes the underlying bus for subscribers.
func (p *Publisher) Bus() *Bus {
	return p.bus
}

// EngineState publishes an engine state transition to the global channel.
func (p *Publisher) EngineState(from, to string, issue int) {
	p.publish(GlobalTasksChannel, EventTypeEngineState, EngineStatePayload{
		Type: EventTypeEngineState, FromState: from, ToState: to, Issue: issue,
	})
}

// IssueSelected publishes the engine's issue selection.
func (p *Publisher) IssueSelected(number int, title, url string) {
	p.publish(GlobalTasksChannel, EventTypeIssueSelected, IssueSelectedPayload{
		Type: EventTypeIssueSelected, Number: number, Title: title, URL: url,
	})
}

// PlanGenerated publishes a completed development plan summary.
func (p *Publisher) PlanGenerated(issue int, summary, complexity string, fileCount int) {
	p.publish(GlobalTasksChannel, EventTypePlanGenerated, PlanGeneratedPayload{
		Type: EventTypePlanGenerated, Issue: issue, Summary: summary,
		Complexity: complexity, FileCount: fileCount,
	})
}

// BranchCreated publishes the engine's working branch.
func (p *Publisher) BranchCreated(issue int, branch string) {
	p.publish(GlobalTasksChannel, EventTypeBranchCreated, BranchCreatedPayload{
		Type: EventTypeBranchCreated, Issue: issue, Branch: branch,
	})
}

// PRCreated publishes pull request creation.
func (p *Publisher) PRCreated(issue, number int, url string) {
	p.publish(GlobalTasksChannel, EventTypePRCreated, PRPayload{
		Type: EventTypePRCreated, Issue: issue, Number: number, URL: url,
	})
}

// PRMerged publishes pull request merge.
func (p *Publisher) PRMerged(issue, number int, url string) {
	p.publish(GlobalTasksChannel, EventTypePRMerged, PRPayload{
		Type: EventTypePRMerged, Issue: issue, Number: number, URL: url,
	})
}

// EngineError publishes an engine failure.
func (p *Publisher) EngineError(issue int, state, message string) {
	p.publish(GlobalTasksChannel, EventTypeEngineError, EngineErrorPayload{
		Type: EventTypeEngineError, Issue: issue, State: state,
		Message: p.maskText(message),
	})
}

// ApprovalPending publishes that the engine is blocked on a manual plan
// approval.
func (p *Publisher) ApprovalPending(issue int, summary string) {
	p.publish(GlobalTasksChannel, EventTypeApprovalPending, EngineApprovalPayload{
		Type: EventTypeApprovalPending, Issue: issue, Summary: summary,
	})
}

// ApprovalDecision publishes the outcome of a pending engine approval.
func (p *Publisher) ApprovalDecision(issue int, approved bool) {
	p.publish(GlobalTasksChannel, EventTypeApprovalDecision, EngineApprovalPayload{
		Type: EventTypeApprovalDecision, Issue: issue, Approved: &approved,
	})
}

// TaskReceived publishes a task entering supervision, ahead of its first
// state transition.
func (p *Publisher) TaskReceived(taskID, taskType, description string, issue int) Event {
	payload := TaskReceivedPayload{
		Type: EventTypeTaskReceived, TaskID: taskID, TaskType: taskType,
		Description: p.maskText(description), Issue: issue,
	}
	evt := p.publish(TaskChannel(taskID), EventTypeTaskReceived, payload)
	p.publish(GlobalTasksChannel, EventTypeTaskReceived, payload)
	return evt
}

// TaskState publishes a supervisor state transition to both the task channel
// and the global tasks channel. Returns the task-channel event so the
// supervisor can append it to its context log.
func (p *Publisher) TaskState(taskID, from, to string, retry int) Event {
	payload := TaskStatePayload{
		Type: EventTypeTaskState, TaskID: taskID,
		FromState: from, ToState: to, Retry: retry,
	}
	evt := p.publish(TaskChannel(taskID), EventTypeTaskState, payload)
	p.publish(GlobalTasksChannel, EventTypeTaskState, payload)
	return evt
}

// ApprovalRequested publishes a pending approval request to both the task
// channel and the global channel, so channel-agnostic observers (the status
// dashboard, the Slack relay) see it without a per-task subscription.
func (p *Publisher) ApprovalRequested(taskID, riskLevel string) Event {
	payload := ApprovalPayload{
		Type: EventTypeApprovalRequest, TaskID: taskID, RiskLevel: riskLevel,
	}
	evt := p.publish(TaskChannel(taskID), EventTypeApprovalRequest, payload)
	p.publish(GlobalTasksChannel, EventTypeApprovalRequest, payload)
	return evt
}

// ApprovalResolved publishes the outcome of an approval request to both the
// task channel and the global channel.
func (p *Publisher) ApprovalResolved(taskID, riskLevel string, approved bool, reason string) Event {
	payload := ApprovalPayload{
		Type: EventTypeApprovalResolved, TaskID: taskID, RiskLevel: riskLevel,
		Approved: &approved, Reason: reason,
	}
	evt := p.publish(TaskChannel(taskID), EventTypeApprovalResolved, payload)
	p.publish(GlobalTasksChannel, EventTypeApprovalResolved, payload)
	return evt
}

// ReviewCompleted publishes a finished implementation review.
func (p *Publisher) ReviewCompleted(taskID string, score float64, approved bool) Event {
	return p.publish(TaskChannel(taskID), EventTypeReviewCompleted, ReviewPayload{
		Type: EventTypeReviewCompleted, TaskID: taskID, Score: score, Approved: approved,
	})
}

// LearningCaptured publishes a stored knowledge entry.
func (p *Publisher) LearningCaptured(taskID, entryID, title string) Event {
	return p.publish(TaskChannel(taskID), EventTypeLearningCaptured, LearningPayload{
		Type: EventTypeLearningCaptured, TaskID: taskID, EntryID: entryID, Title: title,
	})
}

// AgentProgress publishes a transient subprocess progress chunk.
func (p *Publisher) AgentProgress(taskID, kind, text, toolName string) {
	p.publish(TaskChannel(taskID), EventTypeAgentProgress, AgentProgressPayload{
		Type: EventTypeAgentProgress, TaskID: taskID,
		Kind: kind, Text: p.maskText(text), ToolName: toolName,
	})
}

func (p *Publisher) publish(channel, eventType string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal event payload",
			"type", eventType, "channel", channel, "error", err)
		return Event{}
	}
	return p.bus.Publish(Event{
		Type:    eventType,
		Channel: channel,
		Payload: data,
	})
}

// Package scrum implements the supervisory state machine layered on top of
// the engine: risk assessment, knowledge checks, approval, bounded
// implementation retries, review, and learning capture.
package scrum

import (
	"time"

	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/models"
)

// State is one position in the supervisor lifecycle.
type State string

// Supervisor states.
const (
	StateIdle             State = "idle"
	StatePlanning         State = "planning"
	StateAwaitingApproval State = "awaiting_approval"
	StateImplementing     State = "implementing"
	StateReviewing        State = "reviewing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
	StatePaused           State = "paused"
)

// RiskLevel classifies a plan's blast radius. Shared with the models
// package so knowledge entries and API payloads use the same values.
type RiskLevel = models.RiskLevel

// Risk levels.
const (
	RiskLow    = models.RiskLow
	RiskMedium = models.RiskMedium
	RiskHigh   = models.RiskHigh
)

// Task is the unit of work one supervisor session owns.
type Task struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	TaskType    models.TaskType `json:"taskType"`
	ProjectID   string          `json:"projectId,omitempty"`
	IssueNumber int             `json:"issueNumber,omitempty"`
	Branch      string          `json:"branch,omitempty"`
}

// Implementation records one coding attempt.
type Implementation struct {
	Attempt    int     `json:"attempt"`
	Output     string  `json:"output,omitempty"`
	CostUSD    float64 `json:"costUsd"`
	DurationMs int64   `json:"durationMs"`
}

// Review is the quality verdict over an implementation.
type Review struct {
	Score    float64  `json:"score"`
	Approved bool     `json:"approved"`
	Feedback []string `json:"feedback,omitempty"`
}

// Context is one task's full supervision record. Single-writer: only the
// supervisor loop mutates it; callers read a copy via Supervisor.Snapshot.
type Context struct {
	Task           Task                    `json:"task"`
	State          State                   `json:"state"`
	Plan           *models.DevelopmentPlan `json:"plan,omitempty"`
	RiskLevel      RiskLevel               `json:"riskLevel,omitempty"`
	Implementation *Implementation         `json:"implementation,omitempty"`
	Review         *Review                 `json:"review,omitempty"`
	RetryCount     int                     `json:"retryCount"`
	Errors         []string                `json:"errors,omitempty"`
	Learnings      []string                `json:"learnings,omitempty"`
	EventsLog      []events.Event          `json:"eventsLog,omitempty"`
	StartedAt      time.Time               `json:"startedAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

func (c *Context) recordError(err error) {
	c.Errors = append(c.Errors, err.Error())
	c.UpdatedAt = time.Now().UTC()
}

func (c *Context) appendEvent(evt events.Event) {
	if evt.ID == "" {
		return
	}
	c.EventsLog = append(c.EventsLog, evt)
	c.UpdatedAt = time.Now().UTC()
}

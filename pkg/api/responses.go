package api

import (
	"github.com/tamma-ai/tamma/pkg/engine"
	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/scrum"
	"github.com/tamma-ai/tamma/pkg/warnings"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks,omitempty"`
}

// HealthCheck is one named component's health.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Engine     *engine.Status              `json:"engine,omitempty"`
	Supervisor *scrum.Context              `json:"supervisor,omitempty"`
	TaskQueue  *scrum.RunnerHealth         `json:"taskQueue,omitempty"`
	MCPServers map[string]mcp.Status       `json:"mcpServers,omitempty"`
	MCPHealth  map[string]mcp.HealthStatus `json:"mcpHealth,omitempty"`
	Warnings   []warnings.Warning          `json:"warnings,omitempty"`
}

// ApprovalRequest is the body of POST /api/v1/approval.
type ApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// SubmitTaskRequest is the body of POST /api/v1/supervisor/tasks.
type SubmitTaskRequest struct {
	Description string `json:"description"`
	TaskType    string `json:"taskType,omitempty"`
	IssueNumber int    `json:"issueNumber,omitempty"`
	Branch      string `json:"branch,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
}

// SubmitTaskResponse acknowledges a queued task.
type SubmitTaskResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// ApprovalResponse reports whether a pending approval was resolved.
type ApprovalResponse struct {
	Resolved bool   `json:"resolved"`
	Message  string `json:"message,omitempty"`
}

// ActionResponse acknowledges a supervisor control action.
type ActionResponse struct {
	Status string `json:"status"`
}

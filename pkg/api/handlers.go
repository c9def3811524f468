package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/scrum"
	"github.com/tamma-ai/tamma/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// healthHandler handles GET /health. Only in-process components are
// reported; external MCP servers degrade the status but never make it
// unhealthy, so an orchestrator does not restart the process over a
// dependency outage. Probe results from the health monitor take precedence
// over raw connection state when both are wired.
func (s *Server) healthHandler(c *gin.Context) {
	status := healthStatusHealthy
	checks := make(map[string]HealthCheck)

	if s.deps.Engine != nil {
		checks["engine"] = HealthCheck{Status: healthStatusHealthy, Message: string(s.deps.Engine.Status().State)}
	}
	switch {
	case s.deps.Health != nil:
		for name, hs := range s.deps.Health.Statuses() {
			if hs.Healthy {
				checks["mcp:"+name] = HealthCheck{Status: healthStatusHealthy}
				continue
			}
			status = healthStatusDegraded
			checks["mcp:"+name] = HealthCheck{Status: healthStatusDegraded, Message: hs.Error}
		}
	case s.deps.MCP != nil:
		for name, st := range s.deps.MCP.StatusSummary() {
			if st == mcp.StatusConnected {
				checks["mcp:"+name] = HealthCheck{Status: healthStatusHealthy}
				continue
			}
			status = healthStatusDegraded
			checks["mcp:"+name] = HealthCheck{Status: healthStatusDegraded, Message: string(st)}
		}
	}
	if s.deps.Warnings != nil && s.deps.Warnings.Count() > 0 {
		status = healthStatusDegraded
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}

// statusHandler handles GET /api/v1/status: engine snapshot, supervisor
// task context, MCP connection states, probe results, and active warnings.
func (s *Server) statusHandler(c *gin.Context) {
	resp := StatusResponse{}
	if s.deps.Engine != nil {
		st := s.deps.Engine.Status()
		resp.Engine = &st
	}
	if s.deps.Supervisor != nil {
		resp.Supervisor = s.deps.Supervisor.Snapshot()
	}
	if s.deps.Tasks != nil {
		health := s.deps.Tasks.Health()
		resp.TaskQueue = &health
	}
	if s.deps.MCP != nil {
		resp.MCPServers = s.deps.MCP.StatusSummary()
	}
	if s.deps.Health != nil {
		resp.MCPHealth = s.deps.Health.Statuses()
	}
	if s.deps.Warnings != nil {
		resp.Warnings = s.deps.Warnings.Active()
	}
	c.JSON(http.StatusOK, resp)
}

// aggregatorStatsHandler handles GET /api/v1/aggregator/stats.
func (s *Server) aggregatorStatsHandler(c *gin.Context) {
	if s.deps.Aggregator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "aggregator not configured"})
		return
	}
	c.JSON(http.StatusOK, s.deps.Aggregator.Stats())
}

// approvalHandler resolves a pending manual plan approval.
func (s *Server) approvalHandler(c *gin.Context) {
	if s.deps.Engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine not configured"})
		return
	}

	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"approved\": true|false}"})
		return
	}

	if !s.deps.Engine.Approve(*req.Approved) {
		c.JSON(http.StatusConflict, ApprovalResponse{Resolved: false, Message: "no approval pending"})
		return
	}
	c.JSON(http.StatusOK, ApprovalResponse{Resolved: true})
}

// maxTaskDescriptionBytes caps the submitted task description, matching the
// platform's issue body limit.
const maxTaskDescriptionBytes = 64 << 10

// submitTaskHandler handles POST /api/v1/supervisor/tasks. The task is queued
// for supervised execution and the handler returns immediately with its ID;
// progress is observable via /api/v1/status and the event stream.
func (s *Server) submitTaskHandler(c *gin.Context) {
	if s.deps.Tasks == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue not configured"})
		return
	}

	var req SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}
	if len(req.Description) > maxTaskDescriptionBytes {
		c.JSON(http.StatusRequestEntityTooLarge,
			gin.H{"error": fmt.Sprintf("description exceeds maximum size of %d bytes", maxTaskDescriptionBytes)})
		return
	}
	if req.IssueNumber <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issueNumber is required"})
		return
	}

	taskType := models.TaskType(req.TaskType)
	if req.TaskType == "" {
		taskType = models.TaskTypeImplementation
	}
	if !taskType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown task type %q", req.TaskType)})
		return
	}

	id, err := s.deps.Tasks.Submit(scrum.Task{
		Description: req.Description,
		TaskType:    taskType,
		ProjectID:   req.ProjectID,
		IssueNumber: req.IssueNumber,
		Branch:      req.Branch,
	})
	if err != nil {
		if errors.Is(err, scrum.ErrBacklogFull) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "task backlog full"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, SubmitTaskResponse{TaskID: id, Status: "queued"})
}

func (s *Server) pauseHandler(c *gin.Context) {
	s.supervisorAction(c, "paused", func(sup SupervisorControl) { sup.Pause() })
}

func (s *Server) resumeHandler(c *gin.Context) {
	s.supervisorAction(c, "resumed", func(sup SupervisorControl) { sup.Resume() })
}

func (s *Server) cancelHandler(c *gin.Context) {
	s.supervisorAction(c, "cancelled", func(sup SupervisorControl) { sup.Cancel() })
}

func (s *Server) supervisorAction(c *gin.Context, status string, action func(SupervisorControl)) {
	if s.deps.Supervisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "supervisor not configured"})
		return
	}
	action(s.deps.Supervisor)
	c.JSON(http.StatusOK, ActionResponse{Status: status})
}

// wsHandler upgrades to WebSocket and hands the connection to the event
// stream ConnectionManager, which blocks until the socket closes.
func (s *Server) wsHandler(c *gin.Context) {
	if s.deps.ConnManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not available"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// TODO: replace with an OriginPatterns allowlist from config once
		// the dashboard origin is settled.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.deps.ConnManager.HandleConnection(c.Request.Context(), conn)
}

// Package api serves the status and control surface: health, engine and
// supervisor status, aggregator stats, Prometheus metrics, the approval
// endpoint, and the websocket event stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamma-ai/tamma/pkg/aggregator"
	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/engine"
	"github.com/tamma-ai/tamma/pkg/events"
	"github.com/tamma-ai/tamma/pkg/mcp"
	"github.com/tamma-ai/tamma/pkg/scrum"
	"github.com/tamma-ai/tamma/pkg/warnings"
)

const shutdownTimeout = 10 * time.Second

// EngineControl is the engine surface the API needs. Satisfied by
// engine.Engine.
type EngineControl interface {
	Status() engine.Status
	IterationCounts() map[string]int64
	AgentCostUSD() float64
	Approve(approved bool) bool
}

// SupervisorControl is the supervisor surface the API needs. Satisfied by
// scrum.Supervisor.
type SupervisorControl interface {
	Snapshot() *scrum.Context
	Pause()
	Resume()
	Cancel()
}

// TaskQueue accepts tasks for supervised execution. Satisfied by
// scrum.Runner.
type TaskQueue interface {
	Submit(task scrum.Task) (string, error)
	Health() scrum.RunnerHealth
}

// ContextStats exposes aggregator activity counters. Satisfied by
// aggregator.Aggregator.
type ContextStats interface {
	Stats() aggregator.Stats
}

// MCPOverview exposes per-server connection status and request metrics.
// Satisfied by mcp.Manager.
type MCPOverview interface {
	StatusSummary() map[string]mcp.Status
	MetricsSummary() map[string]mcp.MetricsSnapshot
}

// MCPHealth exposes the latest probe results. Satisfied by mcp.HealthMonitor.
type MCPHealth interface {
	Statuses() map[string]mcp.HealthStatus
}

// PlatformStats exposes Git platform client counters. Satisfied by
// platform.GitHubClient.
type PlatformStats interface {
	RetryCount() int64
}

// Dependencies carries the components the server reads from. Any field may
// be nil; the corresponding endpoint sections degrade to empty.
type Dependencies struct {
	Engine      EngineControl
	Supervisor  SupervisorControl
	Tasks       TaskQueue
	Aggregator  ContextStats
	MCP         MCPOverview
	Health      MCPHealth
	Platform    PlatformStats
	Warnings    *warnings.Registry
	ConnManager *events.ConnectionManager
}

// Server is the HTTP status API.
type Server struct {
	cfg    *config.APIConfig
	deps   Dependencies
	logger *slog.Logger

	metricsHandler http.Handler
	httpSrv        *http.Server
}

// NewServer wires the API server and its Prometheus registry.
func NewServer(cfg *config.APIConfig, deps Dependencies) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		newStatusCollector(deps.Engine, deps.Aggregator, deps.MCP, deps.Platform),
	)

	return &Server{
		cfg:            cfg,
		deps:           deps,
		logger:         slog.Default().With("component", "api"),
		metricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
}

// Routes builds the gin router with every endpoint registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger), securityHeaders())

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", gin.WrapH(s.metricsHandler))
	router.GET("/ws", s.wsHandler)

	v1 := router.Group("/api/v1")
	v1.GET("/status", s.statusHandler)
	v1.GET("/aggregator/stats", s.aggregatorStatsHandler)
	v1.POST("/approval", s.approvalHandler)
	v1.POST("/supervisor/tasks", s.submitTaskHandler)
	v1.POST("/supervisor/pause", s.pauseHandler)
	v1.POST("/supervisor/resume", s.resumeHandler)
	v1.POST("/supervisor/cancel", s.cancelHandler)

	return router
}

// Start serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.cfg.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/warnings"
)

// Health check defaults.
const (
	// healthCheckInterval is how often every server is probed.
	healthCheckInterval = 15 * time.Second

	// healthPingTimeout bounds a single probe, redial, or retry.
	healthPingTimeout = 5 * time.Second
)

// HealthStatus is the most recent probe result for one server.
type HealthStatus struct {
	Server    string    `json:"server"`
	Healthy   bool      `json:"healthy"`
	LastCheck time.Time `json:"last_check"`
	Error     string    `json:"error,omitempty"`
	ToolCount int       `json:"tool_count"`
}

// HealthMonitor probes every managed server on a fixed interval by listing
// its tools. A failed probe gets one repair attempt, chosen by error
// classification: momentary server pushback earns a plain retry, anything
// else a redial. If the repair also fails the server is marked unhealthy and
// a warning is raised. Warnings clear automatically when the server
// recovers.
type HealthMonitor struct {
	manager  *Manager
	registry *warnings.Registry

	checkInterval time.Duration
	pingTimeout   time.Duration

	statusMu sync.RWMutex
	statuses map[string]*HealthStatus

	cancel context.CancelFunc
	done   chan struct{}
	logger *slog.Logger
}

// NewHealthMonitor creates a monitor over the manager's connections.
// Warnings are published into the given registry.
func NewHealthMonitor(manager *Manager, registry *warnings.Registry) *HealthMonitor {
	return &HealthMonitor{
		manager:       manager,
		registry:      registry,
		checkInterval: healthCheckInterval,
		pingTimeout:   healthPingTimeout,
		statuses:      make(map[string]*HealthStatus),
		logger:        slog.Default(),
	}
}

// Start launches the background check loop. Starting a running monitor is a
// no-op.
func (m *HealthMonitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop halts the loop and clears recorded statuses so a later Start begins
// with a clean slate.
func (m *HealthMonitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done

	m.statusMu.Lock()
	m.statuses = make(map[string]*HealthStatus)
	m.statusMu.Unlock()

	m.cancel = nil
	m.done = nil
}

func (m *HealthMonitor) loop(ctx context.Context) {
	defer close(m.done)

	// First sweep runs immediately so status endpoints have data at startup.
	m.checkAll(ctx)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *HealthMonitor) checkAll(ctx context.Context) {
	for _, conn := range m.manager.Connections() {
		if ctx.Err() != nil {
			return
		}
		m.checkServer(ctx, conn)
	}
}

// checkServer probes one server with a tools listing. A failed probe gets
// one repair-and-retry before the server is declared unhealthy.
func (m *HealthMonitor) checkServer(ctx context.Context, conn *Connection) {
	name := conn.Name()

	switch conn.Status() {
	case StatusConnecting, StatusReconnecting:
		// The connection is repairing itself; don't fight its backoff loop.
		m.setStatus(name, false, "connection is "+string(conn.Status()), 0)
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	err := conn.refreshTools(probeCtx)
	cancel()
	if err == nil {
		m.markHealthy(name, conn)
		return
	}
	if ctx.Err() != nil {
		// The monitor is shutting down; no verdict on the server.
		return
	}

	action := ClassifyError(err)
	if action != RetrySameConnection {
		// Anything beyond momentary pushback means the server cannot do
		// its most basic operation; a fresh transport is the only repair
		// the monitor has.
		action = RetryAfterRedial
	}

	if action == RetryAfterRedial {
		m.logger.Debug("Health probe failed, redialing", "server", name, "error", err)
		redialCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
		redialErr := conn.redial(redialCtx)
		cancel()
		if redialErr != nil {
			m.markUnhealthy(name, fmt.Sprintf("health probe failed: %s", err))
			return
		}
	} else {
		m.logger.Debug("Health probe hit server pushback, retrying", "server", name, "error", err)
	}

	retryCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	err = conn.refreshTools(retryCtx)
	cancel()
	if err != nil {
		m.markUnhealthy(name, fmt.Sprintf("health probe failed after retry: %s", err))
		return
	}

	m.markHealthy(name, conn)
}

func (m *HealthMonitor) markHealthy(name string, conn *Connection) {
	m.setStatus(name, true, "", len(conn.Tools()))
	m.manager.clearFailure(name)
	m.registry.Clear(warnings.CategoryMCPHealth, name)
}

func (m *HealthMonitor) markUnhealthy(name, detail string) {
	m.setStatus(name, false, detail, 0)
	m.registry.Add(warnings.CategoryMCPHealth,
		fmt.Sprintf("MCP server %q is unhealthy", name), detail, name)
}

func (m *HealthMonitor) setStatus(name string, healthy bool, errMsg string, toolCount int) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	m.statuses[name] = &HealthStatus{
		Server:    name,
		Healthy:   healthy,
		LastCheck: time.Now(),
		Error:     errMsg,
		ToolCount: toolCount,
	}
}

// Statuses returns value copies of the latest probe results keyed by server.
func (m *HealthMonitor) Statuses() map[string]HealthStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	result := make(map[string]HealthStatus, len(m.statuses))
	for name, s := range m.statuses {
		result[name] = *s
	}
	return result
}

// IsHealthy reports whether every monitored server passed its last probe.
// A monitor over zero servers is healthy; one whose first sweep has not
// completed yet is not.
func (m *HealthMonitor) IsHealthy() bool {
	if len(m.manager.Connections()) == 0 {
		return true
	}
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	if len(m.statuses) == 0 {
		return false
	}
	for _, s := range m.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

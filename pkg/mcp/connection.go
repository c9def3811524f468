package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/jsonrpc"
	"github.com/tamma-ai/tamma/pkg/version"
)

// Status is the lifecycle state of a connection.
type Status string

// Connection status constants.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusError        Status = "error"
)

// reconnectBaseInterval and reconnectMaxInterval bound the backoff between
// reconnect attempts: min(2^(attempt-1) * 1s, 30s).
const (
	reconnectBaseInterval = 1 * time.Second
	reconnectMaxInterval  = 30 * time.Second
)

// Connection is one logical MCP connection to an external tool server.
// Lifetime runs from Connect to Disconnect; at most one handshake is in
// flight at any time.
type Connection struct {
	name         string
	cfg          config.MCPServerConfig
	newTransport func() (Transport, error)
	logger       *slog.Logger
	metrics      *Metrics

	mu                sync.Mutex
	status            Status
	transport         Transport
	mux               *jsonrpc.Mux
	serverInfo        Implementation
	capabilities      ServerCapabilities
	tools             []Tool
	resources         []Resource
	prompts           []Prompt
	reconnectAttempts int
	disposed          bool
	reconnectCancel   context.CancelFunc

	// Rate limiting: minimum gap between requests when rate_limit_rpm is set.
	rateMu   sync.Mutex
	lastCall time.Time
}

// NewConnection creates a connection for the named server. It does not dial;
// call Connect.
func NewConnection(name string, cfg config.MCPServerConfig) *Connection {
	c := &Connection{
		name:    name,
		cfg:     cfg,
		logger:  slog.With("mcp_server", name),
		metrics: &Metrics{},
		status:  StatusDisconnected,
	}
	c.newTransport = func() (Transport, error) { return NewTransport(cfg) }
	return c
}

// newConnectionWithTransport is the test seam: it injects a transport factory.
func newConnectionWithTransport(name string, cfg config.MCPServerConfig, factory func() (Transport, error)) *Connection {
	c := NewConnection(name, cfg)
	c.newTransport = factory
	return c
}

// Name returns the configured server name.
func (c *Connection) Name() string { return c.name }

// Status returns the current lifecycle state.
func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Metrics returns a snapshot of the connection's request counters.
func (c *Connection) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Connect dials the transport, performs the initialize handshake, and runs
// best-effort capability discovery. Individual discovery failures leave the
// corresponding list empty without failing the connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("connection %q is disposed", c.name)
	}
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return fmt.Errorf("connection %q already %s", c.name, c.status)
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	if err := c.establish(ctx); err != nil {
		c.setStatus(StatusError)
		return err
	}

	c.setStatus(StatusConnected)
	c.logger.Info("MCP server connected",
		"transport", c.cfg.Transport,
		"tools", len(c.tools),
		"resources", len(c.resources),
		"prompts", len(c.prompts))
	return nil
}

// establish performs transport dial + handshake + discovery. Shared by the
// initial Connect and each reconnect attempt.
func (c *Connection) establish(ctx context.Context) error {
	transport, err := c.newTransport()
	if err != nil {
		return fmt.Errorf("create transport for %q: %w", c.name, err)
	}

	mux := jsonrpc.NewMux(c.name, transport.Send)
	transport.OnMessage(mux.HandleMessage)
	transport.OnError(func(err error) {
		c.logger.Warn("Transport error", "error", err)
	})
	transport.OnClose(func() {
		c.handleTransportClosed(mux)
	})

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := transport.Connect(dialCtx); err != nil {
		return fmt.Errorf("connect transport for %q: %w", c.name, err)
	}

	initResult, err := c.handshake(ctx, mux)
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("handshake with %q: %w", c.name, err)
	}

	c.mu.Lock()
	c.transport = transport
	c.mux = mux
	c.serverInfo = initResult.ServerInfo
	c.capabilities = initResult.Capabilities
	c.mu.Unlock()

	c.registerChangeHandlers(mux)
	c.discoverAll(ctx)
	return nil
}

// handshake runs initialize and the initialized notification.
func (c *Connection) handshake(ctx context.Context, mux *jsonrpc.Mux) (*InitializeResult, error) {
	params := InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo: Implementation{
			Name:    version.AppName,
			Version: version.GitCommit,
		},
	}

	raw, err := mux.Call(ctx, MethodInitialize, params, c.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode initialize result: %w", err)
	}

	if err := mux.Notify(ctx, MethodInitialized, nil); err != nil {
		return nil, fmt.Errorf("send initialized notification: %w", err)
	}
	return &result, nil
}

// registerChangeHandlers re-runs discovery on list-change notifications.
// Refresh failures are swallowed; the previous list is retained.
func (c *Connection) registerChangeHandlers(mux *jsonrpc.Mux) {
	mux.OnNotification(NotifyToolsChanged, func(json.RawMessage) {
		go c.refreshTools(context.Background())
	})
	mux.OnNotification(NotifyResourcesChanged, func(json.RawMessage) {
		go c.refreshResources(context.Background())
	})
	mux.OnNotification(NotifyPromptsChanged, func(json.RawMessage) {
		go c.refreshPrompts(context.Background())
	})
}

// discoverAll fetches tools, resources, and prompts, each best-effort.
func (c *Connection) discoverAll(ctx context.Context) {
	if err := c.refreshTools(ctx); err != nil {
		c.logger.Warn("Tool discovery failed", "error", err)
	}
	if err := c.refreshResources(ctx); err != nil {
		c.logger.Warn("Resource discovery failed", "error", err)
	}
	if err := c.refreshPrompts(ctx); err != nil {
		c.logger.Warn("Prompt discovery failed", "error", err)
	}
}

func (c *Connection) refreshTools(ctx context.Context) error {
	var result listToolsResult
	if err := c.call(ctx, MethodToolsList, nil, &result); err != nil {
		return err
	}
	c.mu.Lock()
	c.tools = result.Tools
	c.mu.Unlock()
	return nil
}

func (c *Connection) refreshResources(ctx context.Context) error {
	var result listResourcesResult
	if err := c.call(ctx, MethodResourcesList, nil, &result); err != nil {
		return err
	}
	c.mu.Lock()
	c.resources = result.Resources
	c.mu.Unlock()
	return nil
}

func (c *Connection) refreshPrompts(ctx context.Context) error {
	var result listPromptsResult
	if err := c.call(ctx, MethodPromptsList, nil, &result); err != nil {
		return err
	}
	c.mu.Lock()
	c.prompts = result.Prompts
	c.mu.Unlock()
	return nil
}

// handleTransportClosed reacts to the carrier ending underneath us.
func (c *Connection) handleTransportClosed(mux *jsonrpc.Mux) {
	mux.Close()

	c.mu.Lock()
	// A stale close from a transport we already replaced is ignored.
	if c.mux != mux {
		c.mu.Unlock()
		return
	}
	if c.disposed {
		c.status = StatusDisconnected
		c.mu.Unlock()
		return
	}
	if !c.cfg.ReconnectOnError {
		c.status = StatusError
		c.mu.Unlock()
		c.logger.Warn("Transport closed, reconnect disabled")
		return
	}
	c.status = StatusReconnecting
	reconnectCtx, cancel := context.WithCancel(context.Background())
	c.reconnectCancel = cancel
	c.mu.Unlock()

	c.logger.Info("Transport closed, reconnecting")
	go c.reconnectLoop(reconnectCtx)
}

// reconnectLoop retries establish with exponential backoff
// min(2^(attempt-1) * 1s, 30s), capped at MaxReconnectAttempts.
func (c *Connection) reconnectLoop(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectBaseInterval
	bo.Multiplier = 2
	bo.MaxInterval = reconnectMaxInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	maxAttempts := c.cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultMaxReconnectAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		wait := bo.NextBackOff()
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		c.mu.Lock()
		c.reconnectAttempts = attempt
		c.mu.Unlock()

		c.logger.Info("Reconnect attempt", "attempt", attempt, "max", maxAttempts)
		if err := c.establish(ctx); err != nil {
			c.logger.Warn("Reconnect attempt failed", "attempt", attempt, "error", err)
			continue
		}

		c.mu.Lock()
		c.status = StatusConnected
		c.reconnectAttempts = 0
		c.mu.Unlock()
		c.logger.Info("Reconnected", "attempt", attempt)
		return
	}

	c.setStatus(StatusError)
	c.logger.Error("Reconnect attempts exhausted", "attempts", maxAttempts)
}

// redial replaces the current transport with a freshly dialed one. The
// health monitor uses it to revive servers that stopped answering or whose
// reconnect budget is exhausted. Refused while a reconnect loop is running.
func (c *Connection) redial(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return fmt.Errorf("connection %q is disposed", c.name)
	}
	if c.status == StatusConnecting || c.status == StatusReconnecting {
		c.mu.Unlock()
		return fmt.Errorf("connection %q is already re-establishing", c.name)
	}
	transport := c.transport
	mux := c.mux
	c.transport = nil
	c.mux = nil
	c.status = StatusReconnecting
	c.mu.Unlock()

	// Closing the old transport fires its close callback with a mux we no
	// longer hold, so no competing reconnect loop starts.
	if mux != nil {
		mux.Close()
	}
	if transport != nil {
		_ = transport.Close()
	}

	if err := c.establish(ctx); err != nil {
		c.setStatus(StatusError)
		return err
	}
	c.setStatus(StatusConnected)
	return nil
}

// Disconnect tears the connection down: cancels any backoff timer, closes
// the transport, and fails all pending requests.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.disposed = true
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	transport := c.transport
	mux := c.mux
	c.transport = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if mux != nil {
		mux.Close()
	}
	if transport != nil {
		return transport.Close()
	}
	return nil
}

// call sends one request and decodes the result into out (which may be nil).
// Metrics are recorded for every attempt.
func (c *Connection) call(ctx context.Context, method string, params any, out any) error {
	c.mu.Lock()
	mux := c.mux
	// Reconnecting is allowed: post-reconnect discovery runs before the
	// status flips back to connected. The closed mux fails stale callers.
	usable := c.status != StatusDisconnected && c.status != StatusError
	c.mu.Unlock()
	if mux == nil || !usable {
		return fmt.Errorf("connection %q is not connected", c.name)
	}

	c.applyRateLimit(ctx)

	start := time.Now()
	raw, err := mux.Call(ctx, method, params, c.cfg.Timeout)
	c.metrics.Record(time.Since(start), err)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// applyRateLimit enforces the configured minimum gap between requests.
func (c *Connection) applyRateLimit(ctx context.Context) {
	if c.cfg.RateLimitRPM <= 0 {
		return
	}
	minGap := time.Minute / time.Duration(c.cfg.RateLimitRPM)

	c.rateMu.Lock()
	wait := minGap - time.Since(c.lastCall)
	if wait > 0 {
		c.rateMu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
		c.rateMu.Lock()
	}
	c.lastCall = time.Now()
	c.rateMu.Unlock()
}

// Tools returns the most recently discovered tool list.
func (c *Connection) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Tool(nil), c.tools...)
}

// Resources returns the most recently discovered resource list.
func (c *Connection) Resources() []Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Resource(nil), c.resources...)
}

// Prompts returns the most recently discovered prompt list.
func (c *Connection) Prompts() []Prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Prompt(nil), c.prompts...)
}

// Capabilities returns the server's advertised capability set.
func (c *Connection) Capabilities() ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// CallTool executes a tool call on the server. A failure classified as
// transient gets one retry after a jittered backoff; when the transport died
// mid-call, the retry rides a fresh dial.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	result, err := c.callToolOnce(ctx, name, args)
	if err == nil {
		return result, nil
	}

	action := ClassifyError(err)
	if action == NoRetry {
		return nil, err
	}
	c.logger.Info("Tool call failed, retrying",
		"tool", name, "action", action.String(), "error", err)

	if !sleepBeforeRetry(ctx) {
		return nil, ctx.Err()
	}
	if action == RetryAfterRedial {
		if redialErr := c.redial(ctx); redialErr != nil {
			return nil, fmt.Errorf("redial for retry of tool %q: %w", name, redialErr)
		}
	}

	result, err = c.callToolOnce(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("retry failed: %w", err)
	}
	return result, nil
}

func (c *Connection) callToolOnce(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	var result CallToolResult
	if err := c.call(ctx, MethodToolsCall, CallToolParams{Name: name, Arguments: args}, &result); err != nil {
		return nil, fmt.Errorf("call tool %q on %q: %w", name, c.name, err)
	}
	return &result, nil
}

// ReadResource fetches one resource body from the server.
func (c *Connection) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	var result ReadResourceResult
	if err := c.call(ctx, MethodResourcesRead, ReadResourceParams{URI: uri}, &result); err != nil {
		return nil, fmt.Errorf("read resource %q from %q: %w", uri, c.name, err)
	}
	return &result, nil
}

func (c *Connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

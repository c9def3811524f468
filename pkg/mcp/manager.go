package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamma-ai/tamma/pkg/config"
)

// capabilityCacheTTL bounds how long discovered capability sets are served
// without re-probing the server.
const capabilityCacheTTL = 5 * time.Minute

// resourceCacheBytes bounds the shared resource content cache.
const resourceCacheBytes = 4 * 1024 * 1024

// ContentMasker redacts secrets from server content before it enters the
// context pipeline. Satisfied by masking.Service.
type ContentMasker interface {
	MaskToolResult(content, serverID string) string
}

// Manager owns one Connection per configured MCP server plus the shared
// capability and resource caches.
type Manager struct {
	logger *slog.Logger
	masker ContentMasker

	mu            sync.RWMutex
	conns         map[string]*Connection
	failedServers map[string]string

	capCache *CapabilityCache
	resCache *ResourceCache
}

// NewManager creates connections for every configured server. Nothing is
// dialed until ConnectAll.
func NewManager(servers map[string]config.MCPServerConfig) *Manager {
	m := &Manager{
		logger:        slog.Default(),
		conns:         make(map[string]*Connection, len(servers)),
		failedServers: make(map[string]string),
		capCache:      NewCapabilityCache(capabilityCacheTTL),
		resCache:      NewResourceCache(resourceCacheBytes),
	}
	for name, cfg := range servers {
		m.conns[name] = NewConnection(name, cfg)
	}
	return m
}

// ConnectAll dials every server. Servers that fail to connect are recorded
// in failedServers; the caller decides whether failures are fatal.
func (m *Manager) ConnectAll(ctx context.Context) {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Connect(ctx); err != nil {
			m.mu.Lock()
			m.failedServers[conn.Name()] = err.Error()
			m.mu.Unlock()
			m.logger.Warn("MCP server failed to connect",
				"server", conn.Name(), "error", err)
			continue
		}
		m.capCache.Set(conn.Name(), CapabilitySet{
			Tools:     conn.Tools(),
			Resources: conn.Resources(),
			Prompts:   conn.Prompts(),
		})
		m.mu.Lock()
		delete(m.failedServers, conn.Name())
		m.mu.Unlock()
	}
}

// SetMasker installs a content masker applied to resource bodies before they
// are cached or returned. Must be called before ConnectAll.
func (m *Manager) SetMasker(masker ContentMasker) {
	m.masker = masker
}

// Get returns the connection for a server name.
func (m *Manager) Get(name string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[name]
	if !ok {
		return nil, fmt.Errorf("mcp server %q not configured", name)
	}
	return conn, nil
}

// Connections returns every managed connection regardless of state.
func (m *Manager) Connections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		out = append(out, conn)
	}
	return out
}

// clearFailure removes a server from the startup failure list once it comes
// back, so status reporting reflects the recovery.
func (m *Manager) clearFailure(name string) {
	m.mu.Lock()
	delete(m.failedServers, name)
	m.mu.Unlock()
}

// Connected returns every connection currently in the connected state.
func (m *Manager) Connected() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Connection
	for _, conn := range m.conns {
		if conn.Status() == StatusConnected {
			out = append(out, conn)
		}
	}
	return out
}

// Capabilities returns the cached capability set for a server, re-probing
// the live connection on a cache miss.
func (m *Manager) Capabilities(name string) (CapabilitySet, error) {
	if set, ok := m.capCache.Get(name); ok {
		return set, nil
	}
	conn, err := m.Get(name)
	if err != nil {
		return CapabilitySet{}, err
	}
	set := CapabilitySet{
		Tools:     conn.Tools(),
		Resources: conn.Resources(),
		Prompts:   conn.Prompts(),
	}
	m.capCache.Set(name, set)
	return set, nil
}

// ConnectedServers returns the names of servers currently connected.
func (m *Manager) ConnectedServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for name, conn := range m.conns {
		if conn.Status() == StatusConnected {
			out = append(out, name)
		}
	}
	return out
}

// ServerResources returns the discovered resources of one server, or nil
// when the server is unknown.
func (m *Manager) ServerResources(name string) []Resource {
	conn, err := m.Get(name)
	if err != nil {
		return nil
	}
	return conn.Resources()
}

// ReadResource reads a resource from the named server, serving repeat reads
// from the shared content cache. Bodies are masked before caching so cache
// hits never resurface redacted secrets.
func (m *Manager) ReadResource(ctx context.Context, server, uri string) ([]byte, bool, error) {
	if content, ok := m.resCache.Get(uri); ok {
		return content, true, nil
	}
	conn, err := m.Get(server)
	if err != nil {
		return nil, false, err
	}
	result, err := conn.ReadResource(ctx, uri)
	if err != nil {
		return nil, false, err
	}
	var body []byte
	for _, contents := range result.Contents {
		body = append(body, []byte(contents.Text)...)
	}
	if m.masker != nil {
		body = []byte(m.masker.MaskToolResult(string(body), server))
	}
	m.resCache.Set(uri, body)
	return body, false, nil
}

// ResourceCache returns the shared LRU content cache.
func (m *Manager) ResourceCache() *ResourceCache {
	return m.resCache
}

// CapabilityCache returns the shared capability cache.
func (m *Manager) CapabilityCache() *CapabilityCache {
	return m.capCache
}

// FailedServers returns a copy of the servers that failed to connect.
func (m *Manager) FailedServers() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.failedServers))
	for k, v := range m.failedServers {
		out[k] = v
	}
	return out
}

// StatusSummary returns every server's current lifecycle state.
func (m *Manager) StatusSummary() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.conns))
	for name, conn := range m.conns {
		out[name] = conn.Status()
	}
	return out
}

// MetricsSummary returns per-server request metrics.
func (m *Manager) MetricsSummary() map[string]MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]MetricsSnapshot, len(m.conns))
	for name, conn := range m.conns {
		out[name] = conn.Metrics()
	}
	return out
}

// Close disconnects every server, returning the first error encountered.
func (m *Manager) Close() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var firstErr error
	for name, conn := range m.conns {
		if err := conn.Disconnect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("disconnect %q: %w", name, err)
		}
	}
	return firstErr
}

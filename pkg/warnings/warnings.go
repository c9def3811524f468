// Package warnings keeps an in-memory registry of non-fatal runtime issues
// that operators should see: an MCP server that stopped answering, a platform
// API that keeps rate-limiting, an agent CLI that went missing. Warnings are
// transient and reset on restart; durable state belongs in the knowledge base.
package warnings

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Warning categories.
const (
	CategoryMCPHealth = "mcp_health" // an MCP server became unhealthy at runtime
	CategoryPlatform  = "platform"   // the issue platform is degraded
	CategoryAgent     = "agent"      // the agent CLI is unavailable or failing
)

// Warning is one active non-fatal issue.
type Warning struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Source    string    `json:"source,omitempty"` // server or component the warning is about
	CreatedAt time.Time `json:"created_at"`
}

// Registry manages active warnings. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	warnings map[string]*Warning
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{warnings: make(map[string]*Warning)}
}

// Add records a warning and returns its ID. An existing warning with the
// same category and source is replaced so repeated failures do not pile up.
func (r *Registry) Add(category, message, details, source string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.warnings {
		if w.Category == category && w.Source == source {
			delete(r.warnings, id)
			break
		}
	}

	id := uuid.New().String()
	r.warnings[id] = &Warning{
		ID:        id,
		Category:  category,
		Message:   message,
		Details:   details,
		Source:    source,
		CreatedAt: time.Now(),
	}
	return id
}

// Active returns value copies of all current warnings.
func (r *Registry) Active() []Warning {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Warning, 0, len(r.warnings))
	for _, w := range r.warnings {
		result = append(result, *w)
	}
	return result
}

// Clear removes the warning matching category + source. Health checks call
// this when a source recovers. Returns true if a warning was removed.
func (r *Registry) Clear(category, source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, w := range r.warnings {
		if w.Category == category && w.Source == source {
			delete(r.warnings, id)
			return true
		}
	}
	return false
}

// Count returns the number of active warnings.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.warnings)
}

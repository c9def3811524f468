// Package agentrun executes coding tasks by driving an external coding CLI
// as a subprocess and parsing its stream-json output into progress events
// and a structured result.
package agentrun

import (
	"context"
	"time"
)

// ProgressKind tags a progress event.
type ProgressKind string

// Progress event kinds.
const (
	ProgressText    ProgressKind = "text"
	ProgressToolUse ProgressKind = "tool_use"
)

// ProgressEvent is one unit of streamed task progress.
type ProgressEvent struct {
	Kind      ProgressKind
	Text      string
	ToolName  string
	Timestamp time.Time
}

// ProgressFunc receives progress events in stream order. May be nil.
type ProgressFunc func(ProgressEvent)

// TaskConfig describes one agent task execution.
type TaskConfig struct {
	Prompt           string
	Model            string
	MaxBudgetUSD     float64
	AllowedTools     []string
	SkipPermissions  bool
	JSONSchema       string
	ResumeSessionID  string
	WorkingDirectory string
	// Timeout bounds the whole subprocess run; zero means no deadline.
	Timeout time.Duration
}

// Result is the terminal outcome of a task execution.
type Result struct {
	Success    bool
	Output     string
	CostUSD    float64
	DurationMs int64
	Error      string
	SessionID  string
}

// Provider is the agent execution port the engine and supervisor drive.
type Provider interface {
	ExecuteTask(ctx context.Context, cfg TaskConfig, progress ProgressFunc) (*Result, error)
	IsAvailable(ctx context.Context) bool
	Dispose() error
}

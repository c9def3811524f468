package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/models"
)

// AgentScriptEntry is one scripted agent task outcome. Exactly one of Result
// or Err should be set; Progress events are streamed before the outcome.
type AgentScriptEntry struct {
	Result   *agentrun.Result
	Err      error
	Progress []agentrun.ProgressEvent
}

// ScriptedAgent implements agentrun.Provider with pre-scripted outcomes,
// consumed in call order. Every TaskConfig is captured for prompt assertions.
type ScriptedAgent struct {
	mu      sync.Mutex
	entries []AgentScriptEntry
	index   int
	calls   []agentrun.TaskConfig
}

// NewScriptedAgent creates an empty scripted agent.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{}
}

// Add appends one scripted outcome.
func (a *ScriptedAgent) Add(entry AgentScriptEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

// ExecuteTask implements agentrun.Provider.
func (a *ScriptedAgent) ExecuteTask(_ context.Context, cfg agentrun.TaskConfig, progress agentrun.ProgressFunc) (*agentrun.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, cfg)
	if a.index >= len(a.entries) {
		n := a.index
		a.mu.Unlock()
		return nil, fmt.Errorf("scripted agent: unexpected call %d, script has %d entries", n+1, n)
	}
	entry := a.entries[a.index]
	a.index++
	a.mu.Unlock()

	if progress != nil {
		for _, evt := range entry.Progress {
			progress(evt)
		}
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Result, nil
}

// IsAvailable implements agentrun.Provider.
func (a *ScriptedAgent) IsAvailable(context.Context) bool { return true }

// Dispose implements agentrun.Provider.
func (a *ScriptedAgent) Dispose() error { return nil }

// Calls returns a snapshot of every captured TaskConfig, in call order.
func (a *ScriptedAgent) Calls() []agentrun.TaskConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]agentrun.TaskConfig, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount returns how many tasks were executed.
func (a *ScriptedAgent) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// PlanJSON renders a minimal valid development plan for an issue, suitable as
// the planning task's scripted output.
func PlanJSON(issue int, summary string) string {
	plan := models.DevelopmentPlan{
		IssueNumber: issue,
		Summary:     summary,
		Approach:    "Wrap the failing call in a bounded retry loop.",
		FileChanges: []models.FileChange{
			{Path: "internal/uploader/uploader.go", Action: models.FileActionModify, Description: "retry transient failures"},
			{Path: "internal/uploader/uploader_test.go", Action: models.FileActionModify, Description: "cover the retry path"},
		},
		TestingStrategy:     "Unit tests with a flaky transport fake.",
		EstimatedComplexity: models.ComplexityLow,
	}
	data, err := json.Marshal(&plan)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// PlanResult wraps PlanJSON in a successful agent result.
func PlanResult(issue int, summary string) *agentrun.Result {
	return &agentrun.Result{
		Success:   true,
		Output:    PlanJSON(issue, summary),
		CostUSD:   0.04,
		SessionID: fmt.Sprintf("sess-%d", issue),
	}
}

// ImplementResult is a successful implementation-run result.
func ImplementResult(issue int) *agentrun.Result {
	return &agentrun.Result{
		Success:   true,
		Output:    "Changes committed.",
		CostUSD:   0.31,
		SessionID: fmt.Sprintf("sess-%d", issue),
	}
}

// ScriptHappyPath scripts the two agent runs a clean iteration makes: plan
// generation followed by implementation.
func ScriptHappyPath(agent *ScriptedAgent, issue int, summary string) {
	agent.Add(AgentScriptEntry{Result: PlanResult(issue, summary)})
	agent.Add(AgentScriptEntry{Result: ImplementResult(issue)})
}

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/config"
)

// ────────────────────────────────────────────────────────────
// Supervised tasks: API submission through the scrum pipeline.
// ────────────────────────────────────────────────────────────

// supervisedImplementResult reports enough evidence (planned file touched,
// green tests) to clear the review threshold outright.
func supervisedImplementResult(issue int) *agentrun.Result {
	return &agentrun.Result{
		Success:   true,
		Output:    "Modified internal/uploader/uploader.go and its test; all tests pass.",
		CostUSD:   0.31,
		SessionID: fmt.Sprintf("sess-%d", issue),
	}
}

func TestE2E_SupervisedTaskCompletes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	agent.Add(AgentScriptEntry{Result: PlanResult(7, "Add retry with backoff to the uploader")})
	agent.Add(AgentScriptEntry{Result: supervisedImplementResult(7)})

	app := NewTestApp(t, WithAgent(agent))
	app.GitHub.AddIssue(7, "Uploads fail on flaky networks", "Retries needed around the transport.", "ai-ready")

	taskID := app.SubmitTask(t, "Add retry with backoff to the uploader", 7)
	app.WaitForTaskState(t, "completed")

	// The runner counts a task only once its record is final, so everything
	// below observes a settled snapshot.
	require.Eventually(t, func() bool {
		status := app.getJSON(t, "/api/v1/status", http.StatusOK)
		queue, _ := status["taskQueue"].(map[string]interface{})
		processed, _ := queue["processed"].(float64)
		return processed == 1
	}, 10*time.Second, 5*time.Millisecond)

	status := app.getJSON(t, "/api/v1/status", http.StatusOK)
	sup, ok := status["supervisor"].(map[string]interface{})
	require.True(t, ok, "status response missing supervisor block")
	taskBlock, _ := sup["task"].(map[string]interface{})
	assert.Equal(t, taskID, taskBlock["id"])
	assert.Equal(t, "low", sup["riskLevel"])
	review, _ := sup["review"].(map[string]interface{})
	require.NotNil(t, review, "completed task carries its review")
	assert.Equal(t, true, review["approved"])
	score, _ := review["score"].(float64)
	assert.InDelta(t, 1.0, score, 0.001)

	queue, _ := status["taskQueue"].(map[string]interface{})
	assert.Equal(t, "idle", queue["status"])

	// Plan generation then one implementation attempt; the supervised path
	// opens no branches or pull requests.
	assert.Equal(t, 2, agent.CallCount())
	assert.Equal(t, 0, app.GitHub.PRCount())
	assert.Equal(t, 1, app.Knowledge.Len(), "success learning captured")
}

func TestE2E_SupervisedTaskManualApproval(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	agent.Add(AgentScriptEntry{Result: PlanResult(7, "Add retry with backoff to the uploader")})
	agent.Add(AgentScriptEntry{Result: supervisedImplementResult(7)})

	app := NewTestApp(t, WithAgent(agent), WithEngineTweak(func(cfg *config.EngineConfig) {
		cfg.AutoApproveLowRisk = false
	}))
	app.GitHub.AddIssue(7, "Uploads fail on flaky networks", "Retries needed around the transport.", "ai-ready")

	app.SubmitTask(t, "Add retry with backoff to the uploader", 7)
	app.WaitForTaskState(t, "awaiting_approval")

	// Implementation has not started while the plan waits on a human.
	assert.Equal(t, 1, agent.CallCount())

	resp := app.postJSON(t, "/api/v1/approval", map[string]interface{}{"approved": true}, http.StatusOK)
	assert.Equal(t, true, resp["resolved"])

	app.WaitForTaskState(t, "completed")
	assert.Equal(t, 2, agent.CallCount())
}

func TestE2E_SupervisedTaskDenied(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	agent.Add(AgentScriptEntry{Result: PlanResult(7, "Add retry with backoff to the uploader")})

	app := NewTestApp(t, WithAgent(agent), WithEngineTweak(func(cfg *config.EngineConfig) {
		cfg.AutoApproveLowRisk = false
	}))
	app.GitHub.AddIssue(7, "Uploads fail on flaky networks", "Retries needed around the transport.", "ai-ready")

	app.SubmitTask(t, "Add retry with backoff to the uploader", 7)
	app.WaitForTaskState(t, "awaiting_approval")

	resp := app.postJSON(t, "/api/v1/approval", map[string]interface{}{"approved": false}, http.StatusOK)
	assert.Equal(t, true, resp["resolved"])

	app.WaitForTaskState(t, "failed")
	assert.Equal(t, 1, agent.CallCount(), "denial stops the task before implementation")

	status := app.getJSON(t, "/api/v1/status", http.StatusOK)
	sup, _ := status["supervisor"].(map[string]interface{})
	errs, _ := sup["errors"].([]interface{})
	require.NotEmpty(t, errs)
	msg, _ := errs[0].(string)
	assert.Contains(t, msg, "denied via approval endpoint")
}

func TestE2E_SupervisedTaskStreamsLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	agent.Add(AgentScriptEntry{Result: PlanResult(7, "Add retry with backoff to the uploader")})
	agent.Add(AgentScriptEntry{Result: supervisedImplementResult(7)})

	app := NewTestApp(t, WithAgent(agent))
	app.GitHub.AddIssue(7, "Uploads fail on flaky networks", "Retries needed around the transport.", "ai-ready")

	taskID := app.SubmitTask(t, "Add retry with backoff to the uploader", 7)

	// Subscribe to the per-task channel; anything published before the
	// subscription lands is replayed from the channel history.
	client, err := WSConnect(context.Background(), app.WSURL)
	require.NoError(t, err)
	defer client.Close()
	_, err = client.WaitForEventType("connection.established", wsWait)
	require.NoError(t, err)
	require.NoError(t, client.Subscribe("task:"+taskID))

	// The learning event is the last one a completed task publishes.
	_, err = client.WaitForEventType("task.learning_captured", wsWait)
	require.NoError(t, err)

	received := client.EventsByType("task.received")
	require.Len(t, received, 1)
	assert.Equal(t, taskID, received[0].PayloadString("task_id"))
	assert.Equal(t, "implementation", received[0].PayloadString("task_type"))
	assert.Equal(t, 7, received[0].PayloadInt("issue"))

	var transitions []string
	for _, evt := range client.EventsByType("task.state") {
		transitions = append(transitions, evt.PayloadString("to_state"))
	}
	assert.Equal(t, []string{
		"planning",
		"awaiting_approval",
		"implementing",
		"reviewing",
		"completed",
	}, transitions)

	reviews := client.EventsByType("task.review_completed")
	require.Len(t, reviews, 1)
	assert.Equal(t, taskID, reviews[0].PayloadString("task_id"))
	approved, _ := reviews[0].Payload()["approved"].(bool)
	assert.True(t, approved)

	learnings := client.EventsByType("task.learning_captured")
	require.Len(t, learnings, 1)
	assert.Equal(t, taskID, learnings[0].PayloadString("task_id"))
	assert.NotEmpty(t, learnings[0].PayloadString("title"))
}

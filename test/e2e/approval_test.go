package e2e

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/engine"
)

func TestE2E_ManualApprovalUnblocksIteration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	ScriptHappyPath(agent, 42, "Add retry with backoff to the uploader")

	app := NewTestApp(t, WithAgent(agent), WithApprovalMode(config.ApprovalModeManual))
	app.GitHub.AddIssue(42, "Add retry logic to uploader", "Uploads fail on flaky networks.", "ai-ready")

	done := app.StartIteration()
	app.WaitForEngineState(t, "awaiting_approval")

	// Nothing beyond the plan has happened while the gate is closed.
	assert.False(t, app.GitHub.HasBranch("feature/42-add-retry-logic-to-uploader"))
	assert.Equal(t, 0, app.GitHub.PRCount())

	resp := app.postJSON(t, "/api/v1/approval", map[string]interface{}{"approved": true}, http.StatusOK)
	assert.Equal(t, true, resp["resolved"])

	require.NoError(t, app.WaitIteration(t, done))
	assert.True(t, app.GitHub.PR(100).Merged)
	assert.Equal(t, "closed", app.GitHub.Issue(42).State)
}

func TestE2E_ManualApprovalDenied(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	agent := NewScriptedAgent()
	ScriptHappyPath(agent, 42, "Add retry with backoff to the uploader")

	app := NewTestApp(t, WithAgent(agent), WithApprovalMode(config.ApprovalModeManual))
	app.GitHub.AddIssue(42, "Add retry logic to uploader", "Uploads fail on flaky networks.", "ai-ready")

	done := app.StartIteration()
	app.WaitForEngineState(t, "awaiting_approval")

	resp := app.postJSON(t, "/api/v1/approval", map[string]interface{}{"approved": false}, http.StatusOK)
	assert.Equal(t, true, resp["resolved"])

	err := app.WaitIteration(t, done)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrApprovalDenied)

	// The denial stopped the pipeline before any mutation of the repo.
	assert.False(t, app.GitHub.HasBranch("feature/42-add-retry-logic-to-uploader"))
	assert.Equal(t, 0, app.GitHub.PRCount())
	assert.Equal(t, "open", app.GitHub.Issue(42).State)
	assert.Equal(t, 1, app.Agent.CallCount())
}

func TestE2E_ApprovalWithoutPendingPlanConflicts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	app := NewTestApp(t)

	resp := app.postJSON(t, "/api/v1/approval", map[string]interface{}{"approved": true}, http.StatusConflict)
	assert.Equal(t, false, resp["resolved"])
	assert.Equal(t, "no approval pending", resp["message"])
}

func TestE2E_ApprovalRejectsMalformedBody(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	app := NewTestApp(t)

	resp, err := http.Post(app.BaseURL+"/api/v1/approval", "application/json",
		nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

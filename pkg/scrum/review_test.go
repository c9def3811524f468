package scrum

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/models"
)

func reviewPlan() *models.DevelopmentPlan {
	return &models.DevelopmentPlan{
		Summary: "fix token refresh",
		FileChanges: []models.FileChange{
			{Path: "src/auth.ts", Action: models.FileActionModify, Description: "d"},
		},
	}
}

func TestHeuristicReviewer_CleanRunPasses(t *testing.T) {
	r := &HeuristicReviewer{Threshold: 0.7}
	review, err := r.Review(context.Background(), reviewPlan(), &agentrun.Result{
		Success: true,
		Output:  "Modified src/auth.ts, all tests pass.",
		CostUSD: 0.5,
	}, 2.0)
	require.NoError(t, err)

	// 0.5 success + 0.2 cost + 0.2 tests + 0.1 plan adherence.
	assert.InDelta(t, 1.0, review.Score, 1e-9)
	assert.True(t, review.Approved)
	assert.Empty(t, review.Feedback)
}

func TestHeuristicReviewer_FailingTestsPenalised(t *testing.T) {
	r := &HeuristicReviewer{Threshold: 0.7}
	review, err := r.Review(context.Background(), reviewPlan(), &agentrun.Result{
		Success: true,
		Output:  "Changed src/auth.ts but 3 tests fail.",
		CostUSD: 0.5,
	}, 2.0)
	require.NoError(t, err)

	// 0.5 + 0.2 - 0.2 + 0.1
	assert.InDelta(t, 0.6, review.Score, 1e-9)
	assert.False(t, review.Approved)
	assert.NotEmpty(t, review.Feedback)
}

func TestHeuristicReviewer_FailedRunScoresLow(t *testing.T) {
	r := &HeuristicReviewer{Threshold: 0.7}
	review, err := r.Review(context.Background(), reviewPlan(), &agentrun.Result{
		Success: false,
		Error:   "exit status 1",
		Output:  "",
		CostUSD: 0.1,
	}, 2.0)
	require.NoError(t, err)

	assert.Less(t, review.Score, 0.7)
	assert.False(t, review.Approved)
	assert.Contains(t, review.Feedback[0], "did not finish successfully")
}

func TestHeuristicReviewer_OverBudgetFlagged(t *testing.T) {
	r := &HeuristicReviewer{Threshold: 0.7}
	review, err := r.Review(context.Background(), reviewPlan(), &agentrun.Result{
		Success: true,
		Output:  "src/auth.ts updated, tests passed",
		CostUSD: 3.5,
	}, 2.0)
	require.NoError(t, err)

	// No cost credit: 0.5 + 0.2 + 0.1.
	assert.InDelta(t, 0.8, review.Score, 1e-9)
	require.Len(t, review.Feedback, 1)
	assert.Contains(t, review.Feedback[0], "budget")
}

func TestHeuristicReviewer_ScoreNeverNegative(t *testing.T) {
	r := &HeuristicReviewer{Threshold: 0.7}
	review, err := r.Review(context.Background(), reviewPlan(), &agentrun.Result{
		Success: false,
		Output:  "test run: fail",
		CostUSD: 5.0,
	}, 2.0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, review.Score, 0.0)
}

package scrum

import (
	"context"
	"fmt"
	"strings"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/models"
)

// Reviewer scores a finished implementation. A score below the configured
// threshold sends the task back to implementation with the feedback lines
// appended to the prompt.
type Reviewer interface {
	Review(ctx context.Context, plan *models.DevelopmentPlan, result *agentrun.Result, maxBudgetUSD float64) (*Review, error)
}

// Review score weights. Success dominates; cost discipline, test evidence,
// and plan adherence split the rest.
const (
	scoreSuccess      = 0.5
	scoreCostLow      = 0.2
	scoreCostInBudget = 0.1
	scoreTestEvidence = 0.2
	scorePlanAdhered  = 0.1
	testFailPenalty   = 0.2
)

// HeuristicReviewer derives a score from the agent's terminal output: run
// outcome, spend against the budget, test evidence in the output, and
// whether the planned files are mentioned at all.
type HeuristicReviewer struct {
	// Threshold is the minimum passing score.
	Threshold float64
}

// Review implements Reviewer.
func (r *HeuristicReviewer) Review(_ context.Context, plan *models.DevelopmentPlan, result *agentrun.Result, maxBudgetUSD float64) (*Review, error) {
	review := &Review{}
	output := strings.ToLower(result.Output)

	if result.Success {
		review.Score += scoreSuccess
	} else {
		review.Feedback = append(review.Feedback, "the previous run did not finish successfully: "+result.Error)
	}

	switch {
	case maxBudgetUSD <= 0 || result.CostUSD <= maxBudgetUSD/2:
		review.Score += scoreCostLow
	case result.CostUSD <= maxBudgetUSD:
		review.Score += scoreCostInBudget
	default:
		review.Feedback = append(review.Feedback,
			fmt.Sprintf("spend %.2f USD exceeded the %.2f USD budget", result.CostUSD, maxBudgetUSD))
	}

	switch {
	case strings.Contains(output, "tests passed") || strings.Contains(output, "all tests pass"):
		review.Score += scoreTestEvidence
	case strings.Contains(output, "test") && strings.Contains(output, "fail"):
		review.Score -= testFailPenalty
		review.Feedback = append(review.Feedback, "the output reports failing tests; fix them and rerun")
	default:
		review.Feedback = append(review.Feedback, "no test evidence in the output; run the test suite and report the result")
	}

	if plan != nil && mentionsAnyPath(output, plan.TouchedPaths()) {
		review.Score += scorePlanAdhered
	} else if plan != nil {
		review.Feedback = append(review.Feedback, "the output does not reference any planned file; confirm the plan was followed")
	}

	if review.Score < 0 {
		review.Score = 0
	}
	review.Approved = review.Score >= r.Threshold
	return review, nil
}

// joinFeedback flattens review feedback lines into the single string the
// implementation prompt carries.
func joinFeedback(lines []string) string {
	return strings.Join(lines, "\n")
}

func mentionsAnyPath(output string, paths []string) bool {
	for _, p := range paths {
		if p != "" && strings.Contains(output, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

package scrum

import (
	"github.com/bmatcuk/doublestar"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Risk classifier thresholds: a plan touching more than highRiskFileCount
// files is high risk regardless of patterns; one touching at most
// lowRiskFileCount files with low complexity and no declared risks is low.
// Everything between is medium.
const (
	highRiskFileCount = 10
	lowRiskFileCount  = 3
)

// ClassifyRisk derives a plan's risk level from its touched paths, change
// count, declared risks, and estimated complexity. highRiskPatterns are
// file globs (doublestar) that force high risk on match.
func ClassifyRisk(plan *models.DevelopmentPlan, highRiskPatterns []string) RiskLevel {
	if plan == nil {
		return RiskHigh
	}

	if plan.EstimatedComplexity == models.ComplexityHigh {
		return RiskHigh
	}
	if len(plan.FileChanges) > highRiskFileCount {
		return RiskHigh
	}
	for _, path := range plan.TouchedPaths() {
		for _, pattern := range highRiskPatterns {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return RiskHigh
			}
		}
	}

	if len(plan.FileChanges) <= lowRiskFileCount &&
		plan.EstimatedComplexity == models.ComplexityLow &&
		len(plan.Risks) == 0 {
		return RiskLow
	}
	return RiskMedium
}

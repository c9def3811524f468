package scrum

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tamma-ai/tamma/pkg/models"
)

func planWith(n int, complexity models.Complexity, risks []string, paths ...string) *models.DevelopmentPlan {
	plan := &models.DevelopmentPlan{
		Summary:             "p",
		EstimatedComplexity: complexity,
		Risks:               risks,
	}
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("pkg/a/file%d.go", i)
		if i < len(paths) {
			path = paths[i]
		}
		plan.FileChanges = append(plan.FileChanges, models.FileChange{
			Path: path, Action: models.FileActionModify, Description: "d",
		})
	}
	return plan
}

func TestClassifyRisk(t *testing.T) {
	highRisk := []string{"**/auth/**", "migrations/*.sql"}

	tests := []struct {
		name     string
		plan     *models.DevelopmentPlan
		expected RiskLevel
	}{
		{"nil plan is high", nil, RiskHigh},
		{"high complexity", planWith(2, models.ComplexityHigh, nil), RiskHigh},
		{"more than ten files", planWith(11, models.ComplexityLow, nil), RiskHigh},
		{"high risk pattern match", planWith(1, models.ComplexityLow, nil, "internal/auth/token.go"), RiskHigh},
		{"migration file", planWith(1, models.ComplexityLow, nil, "migrations/001_init.sql"), RiskHigh},
		{"small low no risks", planWith(3, models.ComplexityLow, nil), RiskLow},
		{"small low with declared risk", planWith(2, models.ComplexityLow, []string{"cache invalidation"}), RiskMedium},
		{"small but medium complexity", planWith(2, models.ComplexityMedium, nil), RiskMedium},
		{"mid-size low", planWith(7, models.ComplexityLow, nil), RiskMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyRisk(tt.plan, highRisk))
		})
	}
}

func TestClassifyRisk_NoPatterns(t *testing.T) {
	assert.Equal(t, RiskLow, ClassifyRisk(planWith(1, models.ComplexityLow, nil, "internal/auth/token.go"), nil))
}

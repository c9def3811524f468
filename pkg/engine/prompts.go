package engine

import (
	"fmt"
	"strings"

	"github.com/tamma-ai/tamma/pkg/docs"
	"github.com/tamma-ai/tamma/pkg/models"
)

// planSchema constrains the planning run's output to a DevelopmentPlan.
const planSchema = `{
  "type": "object",
  "required": ["issueNumber", "summary", "approach", "fileChanges", "testingStrategy", "estimatedComplexity"],
  "properties": {
    "issueNumber": {"type": "integer"},
    "summary": {"type": "string"},
    "approach": {"type": "string"},
    "fileChanges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["path", "action", "description"],
        "properties": {
          "path": {"type": "string"},
          "action": {"type": "string", "enum": ["create", "modify", "delete"]},
          "description": {"type": "string"}
        }
      }
    },
    "testingStrategy": {"type": "string"},
    "estimatedComplexity": {"type": "string", "enum": ["low", "medium", "high"]},
    "risks": {"type": "array", "items": {"type": "string"}}
  }
}`

// buildPlanningPrompt assembles the planning instruction from the analyzed
// issue and the retrieved repository context.
func buildPlanningPrompt(analysis, repoContext string) string {
	var b strings.Builder
	b.WriteString("Produce a development plan for the following issue. ")
	b.WriteString("Respond with a single JSON object matching the provided schema.\n\n")
	b.WriteString(analysis)
	if repoContext != "" {
		b.WriteString("\n\n## Repository context\n\n")
		b.WriteString(repoContext)
	}
	return b.String()
}

// buildImplementationPrompt assembles the coding instruction from the plan
// and the working branch. feedback carries review notes on re-implementation
// passes and is empty on the first attempt.
func buildImplementationPrompt(plan *models.DevelopmentPlan, branch, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Implement issue #%d on branch %s.\n\n", plan.IssueNumber, branch)
	fmt.Fprintf(&b, "## Summary\n%s\n\n## Approach\n%s\n\n", plan.Summary, plan.Approach)

	b.WriteString("## Planned changes\n")
	for _, fc := range plan.FileChanges {
		fmt.Fprintf(&b, "- %s %s: %s\n", fc.Action, fc.Path, fc.Description)
	}

	fmt.Fprintf(&b, "\n## Testing strategy\n%s\n", plan.TestingStrategy)
	if feedback != "" {
		fmt.Fprintf(&b, "\n## Review feedback to address\n%s\n", feedback)
	}
	b.WriteString("\nCommit your work to the branch when done.")
	return b.String()
}

// referencedDocsText renders fetched reference documents for the analysis
// block.
func referencedDocsText(refs []docs.Doc) string {
	var b strings.Builder
	b.WriteString("\n## Referenced documentation\n")
	for _, d := range refs {
		fmt.Fprintf(&b, "\n### %s\n\n%s\n", d.URL, d.Content)
		if d.Truncated {
			b.WriteString("(truncated)\n")
		}
	}
	return b.String()
}

// analysisText renders the issue, its comments, and resolved references into
// the text block the planning prompt embeds.
func analysisText(issue *models.Issue, related []models.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Issue #%d: %s\n\n%s\n", issue.Number, issue.Title, issue.Body)

	if len(issue.Comments) > 0 {
		b.WriteString("\n## Comments\n")
		for _, c := range issue.Comments {
			fmt.Fprintf(&b, "\n%s:\n%s\n", c.Author, c.Body)
		}
	}
	if len(related) > 0 {
		b.WriteString("\n## Referenced issues\n")
		for i := range related {
			fmt.Fprintf(&b, "- #%d: %s\n", related[i].Number, related[i].Title)
		}
	}
	return b.String()
}

// prTitle derives the conventional-commit style PR title from the issue
// labels and the plan summary.
func prTitle(issue *models.Issue, plan *models.DevelopmentPlan) string {
	prefix := "feat"
	switch {
	case issue.HasAnyLabel([]string{"bug", "bugfix", "fix"}):
		prefix = "fix"
	case issue.HasAnyLabel([]string{"chore", "maintenance", "cleanup"}):
		prefix = "chore"
	}
	return fmt.Sprintf("%s: %s (#%d)", prefix, plan.Summary, issue.Number)
}

// prBody renders the pull request description.
func prBody(issue *models.Issue, plan *models.DevelopmentPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closes #%d\n\n## Plan\n\n%s\n\n%s\n", issue.Number, plan.Summary, plan.Approach)
	if len(plan.Risks) > 0 {
		b.WriteString("\n## Risks\n\n")
		for _, r := range plan.Risks {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

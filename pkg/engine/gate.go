package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tamma-ai/tamma/pkg/agentrun"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/permissions"
)

// resolvePermissions returns the active permission set, or nil when no gate
// is installed. Resolution failures abort the operation: the gate never
// silently falls open.
func (e *Engine) resolvePermissions(ctx context.Context) (*permissions.PermissionSet, error) {
	if e.perms == nil {
		return nil, nil
	}
	set, err := e.perms.Resolve(ctx, e.agentType, e.projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	return set, nil
}

// checkPlanPermissions evaluates the plan's file changes against the file
// rules. A denied path or a breached file-count limit is terminal; a
// require-approval match forces manual plan approval for this task.
func (e *Engine) checkPlanPermissions(ctx context.Context, plan *models.DevelopmentPlan) (forceManual bool, err error) {
	set, err := e.resolvePermissions(ctx)
	if err != nil || set == nil {
		return false, err
	}

	if limit := set.Limits.MaxFileChanges; limit > 0 && len(plan.FileChanges) > limit {
		return false, fmt.Errorf("%w: plan touches %d files, limit is %d",
			ErrPermissionDenied, len(plan.FileChanges), limit)
	}
	for _, change := range plan.FileChanges {
		switch set.Check(permissions.CategoryFiles, change.Path) {
		case permissions.DecisionDeny:
			return false, fmt.Errorf("%w: plan touches %s", ErrPermissionDenied, change.Path)
		case permissions.DecisionRequireApproval:
			forceManual = true
		}
	}
	if forceManual {
		e.logger.Info("plan requires manual approval by policy", "issue", plan.IssueNumber)
	}
	return forceManual, nil
}

// applyGate narrows an agent task to the permission set: denied tools drop
// out of the allow list, a require-approval tool disables permission
// bypassing so the subprocess asks interactively, and the limits cap budget
// and duration.
func (e *Engine) applyGate(ctx context.Context, task *agentrun.TaskConfig) error {
	set, err := e.resolvePermissions(ctx)
	if err != nil || set == nil {
		return err
	}

	filtered := make([]string, 0, len(task.AllowedTools))
	for _, tool := range task.AllowedTools {
		switch set.Check(permissions.CategoryTools, tool) {
		case permissions.DecisionDeny:
			e.logger.Debug("tool removed by policy", "tool", tool)
		case permissions.DecisionRequireApproval:
			task.SkipPermissions = false
			filtered = append(filtered, tool)
		default:
			filtered = append(filtered, tool)
		}
	}
	task.AllowedTools = filtered

	if limit := set.Limits.MaxCostUSD; limit > 0 && (task.MaxBudgetUSD <= 0 || task.MaxBudgetUSD > limit) {
		task.MaxBudgetUSD = limit
	}
	if ms := set.Limits.MaxDurationMs; ms > 0 {
		bound := time.Duration(ms) * time.Millisecond
		if task.Timeout <= 0 || task.Timeout > bound {
			task.Timeout = bound
		}
	}
	return nil
}

// checkMergePermission gates the merge step on the git rules. Deny is
// terminal; require-approval hands the merge to a human and leaves the pull
// request open.
func (e *Engine) checkMergePermission(ctx context.Context, prNumber int) error {
	set, err := e.resolvePermissions(ctx)
	if err != nil || set == nil {
		return err
	}
	switch set.Check(permissions.CategoryGit, "merge") {
	case permissions.DecisionDeny:
		return fmt.Errorf("%w: merging pr #%d is blocked by policy", ErrPermissionDenied, prNumber)
	case permissions.DecisionRequireApproval:
		return fmt.Errorf("%w: pr #%d must be merged by a human", ErrEscalationRequired, prNumber)
	}
	return nil
}

package engine

import "errors"

// Sentinel errors for the engine and supervisor failure taxonomy. Callers
// classify with errors.Is; the concrete cause travels in the wrap chain.
var (
	// ErrPlanGeneration marks a failed or unparseable planning run.
	ErrPlanGeneration = errors.New("plan generation failed")
	// ErrCIFailed marks a CI run that finished in failure. The pull
	// request is left intact for human intervention.
	ErrCIFailed = errors.New("ci checks failed")
	// ErrCITimeout marks CI that did not finish within the deadline.
	ErrCITimeout = errors.New("ci polling timed out")
	// ErrApprovalDenied marks a plan rejected by the approver.
	ErrApprovalDenied = errors.New("approval denied")
	// ErrImplementationFailed marks a coding run that did not succeed.
	// The supervisor retries these within its retry budget.
	ErrImplementationFailed = errors.New("implementation failed")
	// ErrCostLimitExceeded marks a task aborted on the spend cap.
	// Terminal for the task; never retried.
	ErrCostLimitExceeded = errors.New("cost limit exceeded")
	// ErrEscalationRequired marks a task the agent handed back for a human.
	ErrEscalationRequired = errors.New("escalation required")
	// ErrPermissionDenied marks an operation refused by the permission
	// gate. Terminal for the operation; retrying cannot change the verdict.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCancelled marks caller-initiated cancellation.
	ErrCancelled = errors.New("cancelled")
)

// Terminal reports whether err must not be retried by the supervisor.
func Terminal(err error) bool {
	return errors.Is(err, ErrCostLimitExceeded) ||
		errors.Is(err, ErrEscalationRequired) ||
		errors.Is(err, ErrCancelled) ||
		errors.Is(err, ErrApprovalDenied) ||
		errors.Is(err, ErrPermissionDenied)
}

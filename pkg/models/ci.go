package models

// CIState is the combined state of all CI checks for a commit.
type CIState string

// CI state constants.
const (
	CIStatePending CIState = "pending"
	CIStateSuccess CIState = "success"
	CIStateFailure CIState = "failure"
	CIStateError   CIState = "error"
)

// CIStatus is derived on each poll by combining commit statuses and check
// runs. It is never stored.
type CIStatus struct {
	State        CIState `json:"state"`
	TotalCount   int     `json:"totalCount"`
	SuccessCount int     `json:"successCount"`
	FailureCount int     `json:"failureCount"`
	PendingCount int     `json:"pendingCount"`
}

// CombineCIOutcomes derives the overall CI state from per-check tallies.
// Failure dominates, then pending; an empty check set counts as success.
func CombineCIOutcomes(success, failure, pending int) CIStatus {
	status := CIStatus{
		TotalCount:   success + failure + pending,
		SuccessCount: success,
		FailureCount: failure,
		PendingCount: pending,
	}
	switch {
	case failure > 0:
		status.State = CIStateFailure
	case pending > 0:
		status.State = CIStatePending
	default:
		status.State = CIStateSuccess
	}
	return status
}

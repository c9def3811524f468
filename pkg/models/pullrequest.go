package models

// PRState is the lifecycle state of a pull request as reported by the platform.
type PRState string

// Pull request state constants.
const (
	PRStateOpen   PRState = "open"
	PRStateClosed PRState = "closed"
	PRStateMerged PRState = "merged"
)

// IsValid checks if the PR state is valid.
func (s PRState) IsValid() bool {
	return s == PRStateOpen || s == PRStateClosed || s == PRStateMerged
}

// MergeMethod selects how a pull request is merged.
type MergeMethod string

// Merge method constants.
const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// IsValid checks if the merge method is valid.
func (m MergeMethod) IsValid() bool {
	return m == MergeMethodMerge || m == MergeMethodSquash || m == MergeMethodRebase
}

// PullRequest is a snapshot of a platform pull request. The engine tracks
// only its identifier between polls; everything else is re-fetched.
//
// Mergeable is tri-state: nil means the platform has not computed
// mergeability yet. The engine merges when CI succeeds and Mergeable is
// true or still unknown, but never when it is explicitly false.
type PullRequest struct {
	Number     int      `json:"number"`
	HeadBranch string   `json:"headBranch"`
	BaseBranch string   `json:"baseBranch"`
	State      PRState  `json:"state"`
	Mergeable  *bool    `json:"mergeable,omitempty"`
	Labels     []string `json:"labels,omitempty"`
	URL        string   `json:"url"`
	HeadSHA    string   `json:"headSha,omitempty"`
}

// MergeBlocked reports whether mergeability is known to be false.
func (pr *PullRequest) MergeBlocked() bool {
	return pr.Mergeable != nil && !*pr.Mergeable
}

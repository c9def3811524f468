// Package platform abstracts the git hosting provider behind a single port.
// The GitHub REST implementation routes every call through rate-limit
// retries and a circuit breaker.
package platform

import (
	"context"
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

// Repository is the remote repository's identity and defaults.
type Repository struct {
	Owner         string
	Name          string
	DefaultBranch string
	CloneURL      string
}

// Branch is a ref snapshot.
type Branch struct {
	Name string
	SHA  string
}

// Commit is one entry of a branch history listing.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Date    time.Time
}

// IssueFilter narrows an issue listing. Zero values list all open issues.
type IssueFilter struct {
	Labels []string
	State  string
}

// IssueUpdate mutates an issue. Nil fields are left untouched.
type IssueUpdate struct {
	State  *string
	Labels []string
}

// NewPullRequest describes a pull request to open.
type NewPullRequest struct {
	Title  string
	Body   string
	Head   string
	Base   string
	Labels []string
}

// PRUpdate mutates a pull request. Nil fields are left untouched.
type PRUpdate struct {
	Title *string
	Body  *string
	State *string
}

// GitPlatform is the port the engine drives. Implementations must be safe
// for concurrent use.
type GitPlatform interface {
	GetRepository(ctx context.Context) (*Repository, error)
	GetBranch(ctx context.Context, name string) (*Branch, error)
	// CreateBranch creates name from the head of the from branch.
	CreateBranch(ctx context.Context, name, from string) (*Branch, error)
	DeleteBranch(ctx context.Context, name string) error

	GetIssue(ctx context.Context, number int) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error)
	UpdateIssue(ctx context.Context, number int, update IssueUpdate) error
	AddIssueComment(ctx context.Context, number int, body string) error
	AssignIssue(ctx context.Context, number int, assignees []string) error

	CreatePR(ctx context.Context, pr NewPullRequest) (*models.PullRequest, error)
	GetPR(ctx context.Context, number int) (*models.PullRequest, error)
	UpdatePR(ctx context.Context, number int, update PRUpdate) error
	MergePR(ctx context.Context, number int, method models.MergeMethod) error
	AddPRComment(ctx context.Context, number int, body string) error

	GetCIStatus(ctx context.Context, sha string) (*models.CIStatus, error)
	ListCommits(ctx context.Context, branch string, limit int) ([]Commit, error)
}

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tamma-ai/tamma/pkg/config"
	"github.com/tamma-ai/tamma/pkg/models"
	"github.com/tamma-ai/tamma/pkg/warnings"
)

const defaultBaseURL = "https://api.github.com"

// breakerTimeout is how long the circuit stays open before probing again.
const breakerTimeout = 60 * time.Second

// GitHubClient implements GitPlatform against the GitHub REST API.
type GitHubClient struct {
	http     *http.Client
	baseURL  string
	token    string
	owner    string
	repo     string
	attempts int
	retries  atomic.Int64
	breaker  *gobreaker.CircuitBreaker
	warnings *warnings.Registry
	logger   *slog.Logger
}

// NewGitHubClient creates a client from the platform configuration. The API
// token is read from the configured environment variable.
func NewGitHubClient(cfg *config.PlatformConfig) (*GitHubClient, error) {
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("platform token: environment variable %s is empty", cfg.TokenEnv)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &GitHubClient{
		http:     &http.Client{Timeout: 30 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		owner:    cfg.Owner,
		repo:     cfg.Repo,
		attempts: cfg.RetryAttempts,
		logger:   slog.Default().With("component", "platform"),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "github",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.breakerStateChanged(from, to)
		},
	})
	return c, nil
}

// SetWarnings registers the registry that receives circuit breaker
// warnings. Must be called before the first request; nil disables them.
func (c *GitHubClient) SetWarnings(reg *warnings.Registry) {
	c.warnings = reg
}

func (c *GitHubClient) breakerStateChanged(from, to gobreaker.State) {
	c.logger.Warn("circuit breaker state changed",
		"from", from.String(), "to", to.String())
	if c.warnings == nil {
		return
	}
	switch to {
	case gobreaker.StateOpen:
		c.warnings.Add(warnings.CategoryPlatform,
			"GitHub API circuit breaker open",
			fmt.Sprintf("tripped after consecutive failures, next probe in %s", breakerTimeout),
			"github")
	case gobreaker.StateClosed:
		c.warnings.Clear(warnings.CategoryPlatform, "github")
	}
}

// RetryCount returns the number of rate-limit retries performed since the
// client was created, read by the metrics collector.
func (c *GitHubClient) RetryCount() int64 {
	return c.retries.Load()
}

// do performs one API call through the circuit breaker and the rate-limit
// retry wrapper, decoding a 2xx response into out when out is non-nil.
func (c *GitHubClient) do(ctx context.Context, method, path string, body, out any) error {
	first := true
	return withRateLimit(ctx, c.attempts, func() error {
		if !first {
			c.retries.Add(1)
		}
		first = false
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.doOnce(ctx, method, path, body, out)
		})
		return err
	})
}

func (c *GitHubClient) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *GitHubClient) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", c.owner, c.repo, suffix)
}

// GetRepository fetches the repository metadata.
func (c *GitHubClient) GetRepository(ctx context.Context) (*Repository, error) {
	var dto ghRepository
	if err := c.do(ctx, http.MethodGet, c.repoPath(""), nil, &dto); err != nil {
		return nil, err
	}
	return &Repository{
		Owner:         dto.Owner.Login,
		Name:          dto.Name,
		DefaultBranch: dto.DefaultBranch,
		CloneURL:      dto.CloneURL,
	}, nil
}

// GetBranch fetches one branch head.
func (c *GitHubClient) GetBranch(ctx context.Context, name string) (*Branch, error) {
	var dto ghBranch
	path := c.repoPath("/branches/" + url.PathEscape(name))
	if err := c.do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, err
	}
	return &Branch{Name: dto.Name, SHA: dto.Commit.SHA}, nil
}

// CreateBranch creates name pointing at the head of from.
func (c *GitHubClient) CreateBranch(ctx context.Context, name, from string) (*Branch, error) {
	base, err := c.GetBranch(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolve base branch %q: %w", from, err)
	}
	payload := map[string]string{
		"ref": "refs/heads/" + name,
		"sha": base.SHA,
	}
	var ref ghRef
	if err := c.do(ctx, http.MethodPost, c.repoPath("/git/refs"), payload, &ref); err != nil {
		return nil, fmt.Errorf("create branch %q: %w", name, err)
	}
	c.logger.Info("branch created", "branch", name, "from", from)
	return &Branch{Name: name, SHA: ref.Object.SHA}, nil
}

// DeleteBranch removes a branch ref.
func (c *GitHubClient) DeleteBranch(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, c.repoPath("/git/refs/heads/"+url.PathEscape(name)), nil, nil)
}

// GetIssue fetches an issue and its comments.
func (c *GitHubClient) GetIssue(ctx context.Context, number int) (*models.Issue, error) {
	var dto ghIssue
	if err := c.do(ctx, http.MethodGet, c.repoPath(fmt.Sprintf("/issues/%d", number)), nil, &dto); err != nil {
		return nil, err
	}
	issue := mapIssue(&dto)

	var comments []ghComment
	if err := c.do(ctx, http.MethodGet, c.repoPath(fmt.Sprintf("/issues/%d/comments", number)), nil, &comments); err != nil {
		return nil, err
	}
	for i := range comments {
		issue.Comments = append(issue.Comments, mapComment(&comments[i]))
	}
	return &issue, nil
}

// ListIssues returns open issues matching the filter, oldest first. Pull
// requests are excluded.
func (c *GitHubClient) ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	state := filter.State
	if state == "" {
		state = "open"
	}
	query := url.Values{
		"state":     {state},
		"sort":      {"created"},
		"direction": {"asc"},
		"per_page":  {"100"},
	}
	if len(filter.Labels) > 0 {
		query.Set("labels", strings.Join(filter.Labels, ","))
	}

	var dtos []ghIssue
	if err := c.do(ctx, http.MethodGet, c.repoPath("/issues?"+query.Encode()), nil, &dtos); err != nil {
		return nil, err
	}
	issues := make([]models.Issue, 0, len(dtos))
	for i := range dtos {
		if dtos[i].PullRequest != nil {
			continue
		}
		issues = append(issues, mapIssue(&dtos[i]))
	}
	return issues, nil
}

// UpdateIssue patches an issue's state and labels.
func (c *GitHubClient) UpdateIssue(ctx context.Context, number int, update IssueUpdate) error {
	payload := map[string]any{}
	if update.State != nil {
		payload["state"] = *update.State
	}
	if update.Labels != nil {
		payload["labels"] = update.Labels
	}
	if len(payload) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPatch, c.repoPath(fmt.Sprintf("/issues/%d", number)), payload, nil)
}

// AddIssueComment posts a comment on an issue.
func (c *GitHubClient) AddIssueComment(ctx context.Context, number int, body string) error {
	payload := map[string]string{"body": body}
	return c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/comments", number)), payload, nil)
}

// AssignIssue sets the issue assignees.
func (c *GitHubClient) AssignIssue(ctx context.Context, number int, assignees []string) error {
	payload := map[string][]string{"assignees": assignees}
	return c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/assignees", number)), payload, nil)
}

// CreatePR opens a pull request and applies the configured labels.
func (c *GitHubClient) CreatePR(ctx context.Context, pr NewPullRequest) (*models.PullRequest, error) {
	payload := map[string]string{
		"title": pr.Title,
		"body":  pr.Body,
		"head":  pr.Head,
		"base":  pr.Base,
	}
	var dto ghPull
	if err := c.do(ctx, http.MethodPost, c.repoPath("/pulls"), payload, &dto); err != nil {
		return nil, err
	}
	if len(pr.Labels) > 0 {
		labels := map[string][]string{"labels": pr.Labels}
		if err := c.do(ctx, http.MethodPost, c.repoPath(fmt.Sprintf("/issues/%d/labels", dto.Number)), labels, nil); err != nil {
			c.logger.Warn("failed to label pull request", "pr", dto.Number, "error", err)
		}
	}
	result := mapPull(&dto)
	result.Labels = pr.Labels
	return &result, nil
}

// GetPR fetches a pull request snapshot.
func (c *GitHubClient) GetPR(ctx context.Context, number int) (*models.PullRequest, error) {
	var dto ghPull
	if err := c.do(ctx, http.MethodGet, c.repoPath(fmt.Sprintf("/pulls/%d", number)), nil, &dto); err != nil {
		return nil, err
	}
	result := mapPull(&dto)
	return &result, nil
}

// UpdatePR patches a pull request.
func (c *GitHubClient) UpdatePR(ctx context.Context, number int, update PRUpdate) error {
	payload := map[string]any{}
	if update.Title != nil {
		payload["title"] = *update.Title
	}
	if update.Body != nil {
		payload["body"] = *update.Body
	}
	if update.State != nil {
		payload["state"] = *update.State
	}
	if len(payload) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPatch, c.repoPath(fmt.Sprintf("/pulls/%d", number)), payload, nil)
}

// MergePR merges a pull request with the given method.
func (c *GitHubClient) MergePR(ctx context.Context, number int, method models.MergeMethod) error {
	payload := map[string]string{"merge_method": string(method)}
	if err := c.do(ctx, http.MethodPut, c.repoPath(fmt.Sprintf("/pulls/%d/merge", number)), payload, nil); err != nil {
		return fmt.Errorf("merge pr #%d: %w", number, err)
	}
	c.logger.Info("pull request merged", "pr", number, "method", method)
	return nil
}

// AddPRComment posts a comment on a pull request.
func (c *GitHubClient) AddPRComment(ctx context.Context, number int, body string) error {
	return c.AddIssueComment(ctx, number, body)
}

// GetCIStatus combines commit statuses and check runs for a commit.
func (c *GitHubClient) GetCIStatus(ctx context.Context, sha string) (*models.CIStatus, error) {
	var statuses ghCombinedStatus
	if err := c.do(ctx, http.MethodGet, c.repoPath("/commits/"+sha+"/status"), nil, &statuses); err != nil {
		return nil, err
	}
	var checks ghCheckRuns
	if err := c.do(ctx, http.MethodGet, c.repoPath("/commits/"+sha+"/check-runs"), nil, &checks); err != nil {
		return nil, err
	}
	status := combineCI(&statuses, &checks)
	return &status, nil
}

// ListCommits returns the newest commits on a branch, up to limit.
func (c *GitHubClient) ListCommits(ctx context.Context, branch string, limit int) ([]Commit, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}
	query := url.Values{
		"sha":      {branch},
		"per_page": {fmt.Sprintf("%d", limit)},
	}
	var dtos []ghCommit
	if err := c.do(ctx, http.MethodGet, c.repoPath("/commits?"+query.Encode()), nil, &dtos); err != nil {
		return nil, err
	}
	commits := make([]Commit, 0, len(dtos))
	for i := range dtos {
		commits = append(commits, mapCommit(&dtos[i]))
	}
	return commits, nil
}

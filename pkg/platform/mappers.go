package platform

import (
	"regexp"
	"strconv"
	"time"

	"github.com/tamma-ai/tamma/pkg/models"
)

// GitHub REST DTOs, mapped into the internal models.

type ghRepository struct {
	Name          string  `json:"name"`
	Owner         ghActor `json:"owner"`
	DefaultBranch string  `json:"default_branch"`
	CloneURL      string  `json:"clone_url"`
}

type ghActor struct {
	Login string `json:"login"`
}

type ghLabel struct {
	Name string `json:"name"`
}

type ghBranch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type ghRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []ghLabel `json:"labels"`
	Assignees []ghActor `json:"assignees"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// PullRequest is set when the "issue" is actually a PR; those are
	// filtered out of issue listings.
	PullRequest *struct{} `json:"pull_request,omitempty"`
}

type ghComment struct {
	User      ghActor   `json:"user"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type ghPull struct {
	Number  int    `json:"number"`
	State   string `json:"state"`
	Merged  bool   `json:"merged"`
	HTMLURL string `json:"html_url"`
	Head    struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Mergeable *bool     `json:"mergeable"`
	Labels    []ghLabel `json:"labels"`
}

type ghCombinedStatus struct {
	Statuses []struct {
		State string `json:"state"`
	} `json:"statuses"`
}

type ghCheckRuns struct {
	CheckRuns []struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"check_runs"`
}

type ghCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// issueRefPattern finds inline #<number> references in issue text.
var issueRefPattern = regexp.MustCompile(`#(\d+)`)

func labelNames(labels []ghLabel) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.Name)
	}
	return out
}

func mapIssue(dto *ghIssue) models.Issue {
	assignees := make([]string, 0, len(dto.Assignees))
	for _, a := range dto.Assignees {
		assignees = append(assignees, a.Login)
	}
	return models.Issue{
		Number:        dto.Number,
		Title:         dto.Title,
		Body:          dto.Body,
		Labels:        labelNames(dto.Labels),
		Assignees:     assignees,
		URL:           dto.HTMLURL,
		CreatedAt:     dto.CreatedAt,
		UpdatedAt:     dto.UpdatedAt,
		RelatedIssues: extractIssueRefs(dto.Body, dto.Number),
	}
}

// extractIssueRefs collects inline #N references, excluding self-references.
func extractIssueRefs(body string, self int) []int {
	var refs []int
	seen := map[int]struct{}{self: {}}
	for _, match := range issueRefPattern.FindAllStringSubmatch(body, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		refs = append(refs, n)
	}
	return refs
}

func mapComment(dto *ghComment) models.IssueComment {
	return models.IssueComment{
		Author:    dto.User.Login,
		Body:      dto.Body,
		CreatedAt: dto.CreatedAt,
	}
}

func mapPull(dto *ghPull) models.PullRequest {
	state := models.PRState(dto.State)
	if dto.Merged {
		state = models.PRStateMerged
	}
	return models.PullRequest{
		Number:     dto.Number,
		HeadBranch: dto.Head.Ref,
		BaseBranch: dto.Base.Ref,
		State:      state,
		Mergeable:  dto.Mergeable,
		Labels:     labelNames(dto.Labels),
		URL:        dto.HTMLURL,
		HeadSHA:    dto.Head.SHA,
	}
}

// combineCI folds commit statuses and check runs into one CI status.
// A check run counts as pending until completed.
func combineCI(statuses *ghCombinedStatus, checks *ghCheckRuns) models.CIStatus {
	success, failure, pending := 0, 0, 0
	for _, s := range statuses.Statuses {
		switch s.State {
		case "success":
			success++
		case "failure", "error":
			failure++
		default:
			pending++
		}
	}
	for _, run := range checks.CheckRuns {
		if run.Status != "completed" {
			pending++
			continue
		}
		switch run.Conclusion {
		case "success", "neutral", "skipped":
			success++
		default:
			failure++
		}
	}
	return models.CombineCIOutcomes(success, failure, pending)
}

func mapCommit(dto *ghCommit) Commit {
	return Commit{
		SHA:     dto.SHA,
		Message: dto.Commit.Message,
		Author:  dto.Commit.Author.Name,
		Date:    dto.Commit.Author.Date,
	}
}

// Package models defines the domain entities shared across the engine,
// supervisor, aggregator, and platform layers. All types here are plain
// data: ownership and lifecycle rules live with the components that
// produce them.
package models

import "time"

// IssueComment is a single comment on an issue, ordered by creation time.
type IssueComment struct {
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Issue is an immutable snapshot of a platform issue, cached in-memory for
// the duration of one engine iteration.
type Issue struct {
	Number        int            `json:"number"`
	Title         string         `json:"title"`
	Body          string         `json:"body"`
	Labels        []string       `json:"labels"`
	Assignees     []string       `json:"assignees"`
	URL           string         `json:"url"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	Comments      []IssueComment `json:"comments,omitempty"`
	RelatedIssues []int          `json:"relatedIssues,omitempty"`
}

// HasLabel reports whether the issue carries the given label.
func (i *Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// HasAnyLabel reports whether the issue carries at least one of the given labels.
func (i *Issue) HasAnyLabel(names []string) bool {
	for _, n := range names {
		if i.HasLabel(n) {
			return true
		}
	}
	return false
}

// HasAllLabels reports whether the issue carries every one of the given labels.
func (i *Issue) HasAllLabels(names []string) bool {
	for _, n := range names {
		if !i.HasLabel(n) {
			return false
		}
	}
	return true
}

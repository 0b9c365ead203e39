// Package vcs fetches repository activity (commits, pull requests, reviews, review
// comments, issues) from a version-control platform.
package vcs

import "time"

// Activity categories, in the order the aggregator fetches them.
const (
	CategoryCommits        = "commits"
	CategoryPullRequests   = "pull_requests"
	CategoryReviewComments = "review_comments"
	CategoryReviews        = "reviews"
	CategoryIssues         = "issues"
)

// Pull request and issue states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Identity is the weakly-keyed author information attached to an activity record.
// Any field may be empty.
type Identity struct {
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// Commit is one commit authored within the requested window.
type Commit struct {
	SHA       string    `json:"sha"`
	Author    Identity  `json:"author"`
	Additions int       `json:"additions"`
	Deletions int       `json:"deletions"`
	Timestamp time.Time `json:"timestamp"`
}

// PullRequest is one pull request created within the requested window.
type PullRequest struct {
	Number    int        `json:"number"`
	Author    Identity   `json:"author"`
	State     string     `json:"state"` // open, closed
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	CreatedAt time.Time  `json:"created_at"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Merged reports whether the pull request has a merge timestamp.
func (p PullRequest) Merged() bool {
	return p.MergedAt != nil
}

// Review is a submitted pull request review.
type Review struct {
	ID          int64     `json:"id"`
	PRNumber    int       `json:"pr_number"`
	Author      Identity  `json:"author"`
	State       string    `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReviewComment is an inline comment left on a pull request diff.
type ReviewComment struct {
	ID        int64     `json:"id"`
	PRNumber  int       `json:"pr_number"`
	Author    Identity  `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Issue is an issue (not a pull request) created or closed within the requested window.
type Issue struct {
	Number    int        `json:"number"`
	Author    Identity   `json:"author"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// InWindow reports whether t falls in [since, until].
func InWindow(t, since, until time.Time) bool {
	return !t.Before(since) && !t.After(until)
}

package vcs

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when the platform throttled the request.
	ErrRateLimited = errors.New("vcs: rate limited")
	// ErrTransient is returned for network failures, timeouts and 5xx responses.
	ErrTransient = errors.New("vcs: transient failure")
)

// Client fetches repository activity within [since, until]. An empty slice means no
// activity; failures are reported as errors wrapping ErrRateLimited or ErrTransient
// where that classification applies.
type Client interface {
	FetchCommits(ctx context.Context, owner, repo string, since, until time.Time) ([]Commit, error)
	FetchPullRequests(ctx context.Context, owner, repo string, since, until time.Time) ([]PullRequest, error)
	FetchReviewComments(ctx context.Context, owner, repo string, since, until time.Time) ([]ReviewComment, error)
	FetchReviews(ctx context.Context, owner, repo string, since, until time.Time) ([]Review, error)
	FetchIssues(ctx context.Context, owner, repo string, since, until time.Time) ([]Issue, error)
}

// IsRetryable reports whether err is a rate-limit or transient failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

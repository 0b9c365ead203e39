package vcs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

const perPage = 100

// GitHubOptions configures GitHubClient.
type GitHubOptions struct {
	Token   string
	BaseURL string // GitHub Enterprise API root; empty for github.com
	Timeout time.Duration
	// SkipCommitStats avoids one extra request per commit at the cost of zero line counts.
	SkipCommitStats bool
}

// GitHubClient implements Client on the GitHub REST API.
type GitHubClient struct {
	gh      *github.Client
	timeout time.Duration
	stats   bool
	logger  *logger.Logger
}

// NewGitHubClient creates a GitHub-backed client. A zero timeout uses the default per-request timeout.
func NewGitHubClient(opts GitHubOptions, log *logger.Logger) (*GitHubClient, error) {
	gh := github.NewClient(&http.Client{})
	if opts.Token != "" {
		gh = gh.WithAuthToken(opts.Token)
	}
	if opts.BaseURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = constants.VCSRequestTimeout
	}
	return &GitHubClient{
		gh:      gh,
		timeout: timeout,
		stats:   !opts.SkipCommitStats,
		logger:  log.Component("github-client"),
	}, nil
}

// call runs one API request under the per-request timeout and classifies its error.
func call[T any](ctx context.Context, c *GitHubClient, op string, fn func(ctx context.Context) (T, *github.Response, error)) (T, *github.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, resp, err := fn(ctx)
	if err != nil {
		return out, resp, classify(op, err)
	}
	return out, resp, nil
}

func classify(op string, err error) error {
	var rle *github.RateLimitError
	var arle *github.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &arle) {
		return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
	}
	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		if er.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
		}
		if er.Response.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(er.Message), "rate limit") {
			return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func identityOf(u *github.User) Identity {
	return Identity{Handle: u.GetLogin(), Name: u.GetName(), Email: u.GetEmail()}
}

func timePtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}

// FetchCommits lists commits on the default branch in the window, with line stats unless disabled.
func (c *GitHubClient) FetchCommits(ctx context.Context, owner, repo string, since, until time.Time) ([]Commit, error) {
	opts := &github.CommitsListOptions{
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []Commit
	for {
		page, resp, err := call(ctx, c, "list commits", func(ctx context.Context) ([]*github.RepositoryCommit, *github.Response, error) {
			return c.gh.Repositories.ListCommits(ctx, owner, repo, opts)
		})
		if err != nil {
			return nil, err
		}
		for _, rc := range page {
			commit := Commit{
				SHA: rc.GetSHA(),
				Author: Identity{
					Handle: rc.GetAuthor().GetLogin(),
					Name:   rc.GetCommit().GetAuthor().GetName(),
					Email:  rc.GetCommit().GetAuthor().GetEmail(),
				},
				Timestamp: rc.GetCommit().GetAuthor().GetDate().Time,
			}
			if c.stats {
				if err := c.fillCommitStats(ctx, owner, repo, &commit); err != nil {
					return nil, err
				}
			}
			out = append(out, commit)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (c *GitHubClient) fillCommitStats(ctx context.Context, owner, repo string, commit *Commit) error {
	full, _, err := call(ctx, c, "get commit", func(ctx context.Context) (*github.RepositoryCommit, *github.Response, error) {
		return c.gh.Repositories.GetCommit(ctx, owner, repo, commit.SHA, nil)
	})
	if err != nil {
		return err
	}
	commit.Additions = full.GetStats().GetAdditions()
	commit.Deletions = full.GetStats().GetDeletions()
	return nil
}

// listPulls pages through pull requests newest-first and stops once fn returns false.
func (c *GitHubClient) listPulls(ctx context.Context, owner, repo, sort string, fn func(pr *github.PullRequest) bool) error {
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        sort,
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		page, resp, err := call(ctx, c, "list pull requests", func(ctx context.Context) ([]*github.PullRequest, *github.Response, error) {
			return c.gh.PullRequests.List(ctx, owner, repo, opts)
		})
		if err != nil {
			return err
		}
		for _, pr := range page {
			if !fn(pr) {
				return nil
			}
		}
		if resp == nil || resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchPullRequests lists pull requests created in the window. Line counts require a
// per-PR request because the list endpoint omits them.
func (c *GitHubClient) FetchPullRequests(ctx context.Context, owner, repo string, since, until time.Time) ([]PullRequest, error) {
	var numbers []int
	err := c.listPulls(ctx, owner, repo, "created", func(pr *github.PullRequest) bool {
		created := pr.GetCreatedAt().Time
		if created.Before(since) {
			return false
		}
		if !created.After(until) {
			numbers = append(numbers, pr.GetNumber())
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	out := make([]PullRequest, 0, len(numbers))
	for _, n := range numbers {
		pr, _, err := call(ctx, c, "get pull request", func(ctx context.Context) (*github.PullRequest, *github.Response, error) {
			return c.gh.PullRequests.Get(ctx, owner, repo, n)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, PullRequest{
			Number:    pr.GetNumber(),
			Author:    identityOf(pr.GetUser()),
			State:     pr.GetState(),
			Additions: pr.GetAdditions(),
			Deletions: pr.GetDeletions(),
			CreatedAt: pr.GetCreatedAt().Time,
			MergedAt:  timePtr(pr.MergedAt),
			ClosedAt:  timePtr(pr.ClosedAt),
		})
	}
	return out, nil
}

// FetchReviewComments lists inline review comments created in the window across all pull requests.
func (c *GitHubClient) FetchReviewComments(ctx context.Context, owner, repo string, since, until time.Time) ([]ReviewComment, error) {
	opts := &github.PullRequestListCommentsOptions{
		Sort:        "created",
		Direction:   "asc",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []ReviewComment
	for {
		page, resp, err := call(ctx, c, "list review comments", func(ctx context.Context) ([]*github.PullRequestComment, *github.Response, error) {
			return c.gh.PullRequests.ListComments(ctx, owner, repo, 0, opts)
		})
		if err != nil {
			return nil, err
		}
		for _, cm := range page {
			created := cm.GetCreatedAt().Time
			if !InWindow(created, since, until) {
				continue
			}
			out = append(out, ReviewComment{
				ID:        cm.GetID(),
				PRNumber:  prNumberFromURL(cm.GetPullRequestURL()),
				Author:    identityOf(cm.GetUser()),
				CreatedAt: created,
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// FetchReviews lists reviews submitted in the window on pull requests updated since the window start.
func (c *GitHubClient) FetchReviews(ctx context.Context, owner, repo string, since, until time.Time) ([]Review, error) {
	var numbers []int
	err := c.listPulls(ctx, owner, repo, "updated", func(pr *github.PullRequest) bool {
		if pr.GetUpdatedAt().Time.Before(since) {
			return false
		}
		numbers = append(numbers, pr.GetNumber())
		return true
	})
	if err != nil {
		return nil, err
	}

	var out []Review
	for _, n := range numbers {
		opts := &github.ListOptions{PerPage: perPage}
		for {
			page, resp, err := call(ctx, c, "list reviews", func(ctx context.Context) ([]*github.PullRequestReview, *github.Response, error) {
				return c.gh.PullRequests.ListReviews(ctx, owner, repo, n, opts)
			})
			if err != nil {
				return nil, err
			}
			for _, rv := range page {
				submitted := rv.GetSubmittedAt().Time
				if rv.GetState() == "PENDING" || !InWindow(submitted, since, until) {
					continue
				}
				out = append(out, Review{
					ID:          rv.GetID(),
					PRNumber:    n,
					Author:      identityOf(rv.GetUser()),
					State:       rv.GetState(),
					SubmittedAt: submitted,
				})
			}
			if resp == nil || resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	return out, nil
}

// FetchIssues lists issues created or closed in the window. Pull requests are excluded.
func (c *GitHubClient) FetchIssues(ctx context.Context, owner, repo string, since, until time.Time) ([]Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	var out []Issue
	for {
		page, resp, err := call(ctx, c, "list issues", func(ctx context.Context) ([]*github.Issue, *github.Response, error) {
			return c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		})
		if err != nil {
			return nil, err
		}
		for _, is := range page {
			if is.IsPullRequest() {
				continue
			}
			issue := Issue{
				Number:    is.GetNumber(),
				Author:    identityOf(is.GetUser()),
				State:     is.GetState(),
				CreatedAt: is.GetCreatedAt().Time,
				ClosedAt:  timePtr(is.ClosedAt),
			}
			createdIn := InWindow(issue.CreatedAt, since, until)
			closedIn := issue.ClosedAt != nil && InWindow(*issue.ClosedAt, since, until)
			if createdIn || closedIn {
				out = append(out, issue)
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	c.logger.Debug("fetched issues",
		zap.String("repository", owner+"/"+repo),
		zap.Int("count", len(out)))
	return out, nil
}

func prNumberFromURL(u string) int {
	idx := strings.LastIndexByte(u, '/')
	if idx < 0 {
		return 0
	}
	var n int
	_, _ = fmt.Sscanf(u[idx+1:], "%d", &n)
	return n
}

package vcs

import (
	"context"
	"sync"
	"time"
)

// RepoFixture holds the activity a MockClient serves for one repository.
type RepoFixture struct {
	Commits        []Commit
	PullRequests   []PullRequest
	ReviewComments []ReviewComment
	Reviews        []Review
	Issues         []Issue
}

// MockClient implements Client with in-memory fixtures. Records are filtered by the
// requested window the same way the real client filters them.
type MockClient struct {
	mu       sync.RWMutex
	repos    map[string]*RepoFixture
	failures map[string]error // keyed by "owner/repo" or "owner/repo#category"
	calls    []string
	delay    time.Duration
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		repos:    make(map[string]*RepoFixture),
		failures: make(map[string]error),
	}
}

// SetRepo replaces the fixture for owner/repo.
func (m *MockClient) SetRepo(owner, repo string, f RepoFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[owner+"/"+repo] = &f
}

// FailRepo makes every call for owner/repo return err.
func (m *MockClient) FailRepo(owner, repo string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[owner+"/"+repo] = err
}

// FailCategory makes calls for one activity category of owner/repo return err.
func (m *MockClient) FailCategory(owner, repo, category string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[owner+"/"+repo+"#"+category] = err
}

// SetDelay makes every call block for d or until ctx is done.
func (m *MockClient) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns the "owner/repo#category" calls made so far, in order.
func (m *MockClient) Calls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.calls...)
}

func (m *MockClient) begin(ctx context.Context, owner, repo, category string) (*RepoFixture, error) {
	key := owner + "/" + repo
	m.mu.Lock()
	m.calls = append(m.calls, key+"#"+category)
	delay := m.delay
	err := m.failures[key]
	if err == nil {
		err = m.failures[key+"#"+category]
	}
	f := m.repos[key]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if f == nil {
		return &RepoFixture{}, nil
	}
	return f, nil
}

func (m *MockClient) FetchCommits(ctx context.Context, owner, repo string, since, until time.Time) ([]Commit, error) {
	f, err := m.begin(ctx, owner, repo, CategoryCommits)
	if err != nil {
		return nil, err
	}
	out := []Commit{}
	for _, c := range f.Commits {
		if InWindow(c.Timestamp, since, until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockClient) FetchPullRequests(ctx context.Context, owner, repo string, since, until time.Time) ([]PullRequest, error) {
	f, err := m.begin(ctx, owner, repo, CategoryPullRequests)
	if err != nil {
		return nil, err
	}
	out := []PullRequest{}
	for _, p := range f.PullRequests {
		if InWindow(p.CreatedAt, since, until) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockClient) FetchReviewComments(ctx context.Context, owner, repo string, since, until time.Time) ([]ReviewComment, error) {
	f, err := m.begin(ctx, owner, repo, CategoryReviewComments)
	if err != nil {
		return nil, err
	}
	out := []ReviewComment{}
	for _, c := range f.ReviewComments {
		if InWindow(c.CreatedAt, since, until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockClient) FetchReviews(ctx context.Context, owner, repo string, since, until time.Time) ([]Review, error) {
	f, err := m.begin(ctx, owner, repo, CategoryReviews)
	if err != nil {
		return nil, err
	}
	out := []Review{}
	for _, r := range f.Reviews {
		if InWindow(r.SubmittedAt, since, until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockClient) FetchIssues(ctx context.Context, owner, repo string, since, until time.Time) ([]Issue, error) {
	f, err := m.begin(ctx, owner, repo, CategoryIssues)
	if err != nil {
		return nil, err
	}
	out := []Issue{}
	for _, is := range f.Issues {
		createdIn := InWindow(is.CreatedAt, since, until)
		closedIn := is.ClosedAt != nil && InWindow(*is.ClosedAt, since, until)
		if createdIn || closedIn {
			out = append(out, is)
		}
	}
	return out, nil
}

var _ Client = (*MockClient)(nil)
var _ Client = (*GitHubClient)(nil)

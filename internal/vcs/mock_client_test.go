package vcs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientFiltersByWindow(t *testing.T) {
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	closed := base.Add(48 * time.Hour)

	m := NewMockClient()
	m.SetRepo("acme", "api", RepoFixture{
		Commits: []Commit{
			{SHA: "in", Timestamp: base.Add(time.Hour)},
			{SHA: "out", Timestamp: base.Add(-time.Hour)},
		},
		Issues: []Issue{
			{Number: 1, CreatedAt: base.Add(-72 * time.Hour), ClosedAt: &closed},
			{Number: 2, CreatedAt: base.Add(-72 * time.Hour)},
		},
	})

	ctx := context.Background()
	until := base.Add(7 * 24 * time.Hour)

	commits, err := m.FetchCommits(ctx, "acme", "api", base, until)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "in", commits[0].SHA)

	issues, err := m.FetchIssues(ctx, "acme", "api", base, until)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 1, issues[0].Number)

	prs, err := m.FetchPullRequests(ctx, "acme", "unknown", base, until)
	require.NoError(t, err)
	assert.Empty(t, prs)

	assert.Equal(t, []string{"acme/api#commits", "acme/api#issues", "acme/unknown#pull_requests"}, m.Calls())
}

func TestMockClientFailures(t *testing.T) {
	m := NewMockClient()
	boom := errors.New("boom")
	m.FailCategory("acme", "api", CategoryReviews, ErrRateLimited)
	m.FailRepo("acme", "down", boom)

	ctx := context.Background()
	now := time.Now()

	_, err := m.FetchReviews(ctx, "acme", "api", now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrRateLimited)

	_, err = m.FetchCommits(ctx, "acme", "api", now.Add(-time.Hour), now)
	assert.NoError(t, err)

	_, err = m.FetchIssues(ctx, "acme", "down", now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, boom)
}

func TestMockClientDelayHonoursContext(t *testing.T) {
	m := NewMockClient()
	m.SetDelay(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.FetchCommits(ctx, "acme", "api", time.Now(), time.Now())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

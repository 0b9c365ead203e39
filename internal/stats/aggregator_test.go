package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/identity"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/vcs"
)

var (
	periodStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 1, 12, 23, 59, 59, 0, time.UTC)
	testPeriod  = Period{Start: periodStart, End: periodEnd}
)

func at(hours int) time.Time {
	return periodStart.Add(time.Duration(hours) * time.Hour)
}

func ptr(t time.Time) *time.Time { return &t }

func testMembers() []roster.TeamMember {
	return []roster.TeamMember{
		{ID: "seungyoung", DisplayName: "김승영", VCSHandle: "tmddud", Email: "tmddud@company.com"},
		{ID: "jane", DisplayName: "Jane Doe", VCSHandle: "jdoe"},
		{ID: "idle", DisplayName: "Idle Person"},
	}
}

func fixtureClient() *vcs.MockClient {
	m := vcs.NewMockClient()
	m.SetRepo("acme", "api", vcs.RepoFixture{
		Commits: []vcs.Commit{
			{SHA: "a1", Author: vcs.Identity{Handle: "tmddud"}, Additions: 10, Deletions: 5, Timestamp: at(1)},
			{SHA: "a2", Author: vcs.Identity{Handle: "tmddud"}, Additions: 10, Deletions: 5, Timestamp: at(2)},
			{SHA: "a3", Author: vcs.Identity{Handle: "danal-tmddud333"}, Timestamp: at(3)},
			{SHA: "a4", Author: vcs.Identity{Handle: "ghost"}, Additions: 99, Timestamp: at(4)},
			{SHA: "old", Author: vcs.Identity{Handle: "tmddud"}, Additions: 1000, Timestamp: at(-48)},
		},
		PullRequests: []vcs.PullRequest{
			{Number: 1, Author: vcs.Identity{Handle: "tmddud"}, State: vcs.StateClosed, Additions: 100, Deletions: 50,
				CreatedAt: at(5), MergedAt: ptr(at(6)), ClosedAt: ptr(at(6))},
			{Number: 2, Author: vcs.Identity{Handle: "jdoe"}, State: vcs.StateClosed, CreatedAt: at(5), ClosedAt: ptr(at(7))},
			{Number: 3, Author: vcs.Identity{Handle: "jdoe"}, State: vcs.StateOpen, CreatedAt: at(8)},
		},
		ReviewComments: []vcs.ReviewComment{
			{ID: 1, PRNumber: 1, Author: vcs.Identity{Handle: "jdoe"}, CreatedAt: at(6)},
			{ID: 2, PRNumber: 1, Author: vcs.Identity{Handle: "JDOE"}, CreatedAt: at(6)},
		},
		Reviews: []vcs.Review{
			{ID: 1, PRNumber: 2, Author: vcs.Identity{Handle: "tmddud"}, State: "APPROVED", SubmittedAt: at(7)},
		},
		Issues: []vcs.Issue{
			{Number: 10, Author: vcs.Identity{Handle: "jdoe"}, State: vcs.StateClosed, CreatedAt: at(1), ClosedAt: ptr(at(3))},
			{Number: 11, Author: vcs.Identity{Handle: "tmddud"}, State: vcs.StateClosed, CreatedAt: at(-72), ClosedAt: ptr(at(3))},
		},
	})
	m.FailRepo("acme", "web", vcs.ErrTransient)
	return m
}

func testRepos() []Repository {
	return []Repository{
		{Owner: "acme", Name: "api", Enabled: true},
		{Owner: "acme", Name: "web", Enabled: true},
		{Owner: "acme", Name: "old", Enabled: false},
	}
}

func newTestAggregator(client vcs.Client) *Aggregator {
	return NewAggregator(client, identity.NewResolver("company.com"), logger.NewNop(), WithRepositoryDelay(0))
}

func TestAggregateCounts(t *testing.T) {
	client := fixtureClient()
	agg := newTestAggregator(client)

	result, err := agg.Aggregate(context.Background(), testPeriod, testRepos(), testMembers(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"seungyoung", "jane", "idle"}, result.Members)
	assert.Equal(t, []string{"acme/api", "acme/web"}, result.Repositories)

	sy := result.Stats["seungyoung"]
	assert.Equal(t, 3, sy.Commits)
	assert.Equal(t, 1, sy.PullRequests)
	assert.Equal(t, 1, sy.PullRequestsMerged)
	assert.Equal(t, 0, sy.PullRequestsClosed)
	assert.Equal(t, 120, sy.LinesAdded)
	assert.Equal(t, 60, sy.LinesDeleted)
	assert.Equal(t, 1, sy.Reviews)
	assert.Equal(t, 0, sy.IssuesCreated)
	assert.Equal(t, 1, sy.IssuesClosed)
	assert.Equal(t, []string{"acme/api"}, sy.Repositories)

	jane := result.Stats["jane"]
	assert.Equal(t, 0, jane.Commits)
	assert.Equal(t, 2, jane.PullRequests)
	assert.Equal(t, 0, jane.PullRequestsMerged)
	assert.Equal(t, 1, jane.PullRequestsClosed)
	assert.Equal(t, 2, jane.PRComments)
	assert.Equal(t, 1, jane.IssuesCreated)
	assert.Equal(t, 1, jane.IssuesClosed)

	assert.False(t, result.Stats["idle"].Active())
	assert.Equal(t, 2, result.ActiveMembers())

	require.Len(t, result.Unattributed, 1)
	assert.Equal(t, "ghost", result.Unattributed[0].Handle)
	assert.Equal(t, 1, result.Unattributed[0].Records)
	assert.Equal(t, []string{"acme/api"}, result.Unattributed[0].Repositories)

	require.Len(t, result.Failures, 5)
	for _, f := range result.Failures {
		assert.Equal(t, "acme/web", f.Repository)
	}
}

func TestAggregateFetchOrder(t *testing.T) {
	client := fixtureClient()
	_, err := newTestAggregator(client).Aggregate(context.Background(), testPeriod, testRepos(), testMembers(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"acme/api#commits", "acme/api#pull_requests", "acme/api#review_comments", "acme/api#reviews", "acme/api#issues",
		"acme/web#commits", "acme/web#pull_requests", "acme/web#review_comments", "acme/web#reviews", "acme/web#issues",
	}, client.Calls())
}

func TestAggregateSingleCategoryFailure(t *testing.T) {
	client := fixtureClient()
	client.FailCategory("acme", "api", vcs.CategoryPullRequests, vcs.ErrRateLimited)

	result, err := newTestAggregator(client).Aggregate(context.Background(), testPeriod, testRepos()[:1], testMembers(), nil)
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, vcs.CategoryPullRequests, result.Failures[0].Category)
	assert.Equal(t, 0, result.Stats["jane"].PullRequests)
	assert.Equal(t, 3, result.Stats["seungyoung"].Commits)
	assert.Equal(t, 20, result.Stats["seungyoung"].LinesAdded)
}

func TestAggregatePreconditions(t *testing.T) {
	agg := newTestAggregator(vcs.NewMockClient())
	ctx := context.Background()

	tests := []struct {
		name    string
		repos   []Repository
		members []roster.TeamMember
		want    error
	}{
		{"no repositories", nil, testMembers(), ErrNoRepositories},
		{"only disabled repositories", []Repository{{Owner: "a", Name: "b"}}, testMembers(), ErrNoRepositories},
		{"empty roster", testRepos(), nil, ErrEmptyRoster},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := agg.Aggregate(ctx, testPeriod, tt.repos, tt.members, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestAggregateProgress(t *testing.T) {
	type update struct {
		percent int
		stage   Stage
	}
	var updates []update

	_, err := newTestAggregator(fixtureClient()).Aggregate(context.Background(), testPeriod, testRepos(), testMembers(),
		func(percent int, _ string, stage Stage) {
			updates = append(updates, update{percent, stage})
		})
	require.NoError(t, err)

	require.Len(t, updates, 4)
	assert.Equal(t, StageMapping, updates[0].stage)
	assert.Equal(t, StageCollecting, updates[1].stage)
	assert.Equal(t, StageCollecting, updates[2].stage)
	assert.Equal(t, StageAggregated, updates[3].stage)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].percent, updates[i-1].percent)
	}
}

func TestAggregateCancelledBetweenRepositories(t *testing.T) {
	client := fixtureClient()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := newTestAggregator(client).Aggregate(ctx, testPeriod, testRepos(), testMembers(),
		func(_ int, message string, stage Stage) {
			if stage == StageCollecting && message == "collecting acme/web (2/2)" {
				cancel()
			}
		})
	assert.ErrorIs(t, err, context.Canceled)

	for _, call := range client.Calls() {
		assert.NotContains(t, call, "acme/web")
	}
}

func TestAggregateIsDeterministic(t *testing.T) {
	first, err := newTestAggregator(fixtureClient()).Aggregate(context.Background(), testPeriod, testRepos(), testMembers(), nil)
	require.NoError(t, err)
	second, err := newTestAggregator(fixtureClient()).Aggregate(context.Background(), testPeriod, testRepos(), testMembers(), nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestMemberStatsTouch(t *testing.T) {
	s := NewMemberStats("a", "A")
	s.Touch("z/repo")
	s.Touch("a/repo")
	s.Touch("z/repo")
	assert.Equal(t, []string{"a/repo", "z/repo"}, s.Repositories)
}

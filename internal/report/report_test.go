package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
)

var (
	weekStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	weekEnd   = time.Date(2025, 1, 12, 23, 59, 59, 0, time.UTC)
)

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		s    stats.MemberStats
		want int
	}{
		{"reference member", stats.MemberStats{
			Commits: 5, PullRequests: 2, PullRequestsMerged: 1, LinesAdded: 100, LinesDeleted: 50,
			PRComments: 3, Reviews: 1,
		}, 124},
		{"zero", stats.MemberStats{}, 0},
		{"closed without merge is penalised", stats.MemberStats{PullRequests: 1, PullRequestsClosed: 1}, 10},
		{"issues", stats.MemberStats{IssuesCreated: 2, IssuesClosed: 1}, 11},
		{"rounds half up", stats.MemberStats{LinesAdded: 50}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(&tt.s))
		})
	}
}

func TestMergeRate(t *testing.T) {
	assert.Equal(t, 0, MergeRate(0, 0))
	assert.Equal(t, 50, MergeRate(1, 2))
	assert.Equal(t, 67, MergeRate(2, 3))
	assert.Equal(t, 100, MergeRate(4, 4))
}

func TestBar(t *testing.T) {
	tests := []struct {
		value, max int
		want       string
	}{
		{0, 10, "░░░░░░░░░░"},
		{10, 10, "██████████"},
		{5, 10, "█████░░░░░"},
		{1, 100, "█░░░░░░░░░"},
		{3, 0, "░░░░░░░░░░"},
		{20, 10, "██████████"},
	}
	for _, tt := range tests {
		got := Bar(tt.value, tt.max)
		assert.Equal(t, tt.want, got, "Bar(%d, %d)", tt.value, tt.max)
		assert.Equal(t, barWidth, len([]rune(got)))
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"weekly": KindWeekly, "weekly-report": KindWeekly, " Monthly ": KindMonthly, "monthly-report": KindMonthly,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("daily")
	assert.Error(t, err)
	assert.Equal(t, "weekly-report", KindWeekly.TaskType())
}

func sampleStats() map[string]*stats.MemberStats {
	alice := stats.NewMemberStats("a", "Alice")
	alice.Commits, alice.PullRequests, alice.PullRequestsMerged = 5, 2, 1
	alice.LinesAdded, alice.LinesDeleted, alice.PRComments, alice.Reviews = 100, 50, 3, 1

	bob := stats.NewMemberStats("b", "Bob")
	bob.Commits, bob.PullRequests, bob.PullRequestsMerged, bob.LinesAdded = 5, 1, 1, 1200

	idle := stats.NewMemberStats("c", "")
	return map[string]*stats.MemberStats{"a": alice, "b": bob, "c": idle}
}

func TestRenderNoActivity(t *testing.T) {
	out := Render(map[string]*stats.MemberStats{"c": stats.NewMemberStats("c", "C")}, weekStart, weekEnd, KindWeekly)

	assert.Contains(t, out, "📅 2025-01-06 ~ 2025-01-12")
	assert.Contains(t, out, "활동이 없습니다")
	assert.NotContains(t, out, "MVP")
	assert.NotContains(t, out, "요약")
}

func TestRenderRankedSections(t *testing.T) {
	out := Render(sampleStats(), weekStart, weekEnd, KindWeekly)

	assert.True(t, strings.HasPrefix(out, "📊 주간 GitHub 활동 리포트\n"))
	assert.Contains(t, out, "🏆 이번 주 MVP: Alice (124점) 축하합니다!")

	// equal commit counts fall back to score
	assert.Contains(t, out, "💻 커밋\n1. Alice ██████████ 5\n2. Bob ██████████ 5\n")
	assert.Contains(t, out, "🔀 Pull Request 생성\n1. Alice ██████████ 2\n2. Bob █████░░░░░ 1\n")
	assert.Contains(t, out, "1. Alice ██████████ 1 (머지율 50%)\n2. Bob ██████████ 1 (머지율 100%)\n")
	assert.Contains(t, out, "📝 코드 추가\n1. Bob ██████████ 1,200 (-0)\n2. Alice █░░░░░░░░░ 100 (-50)\n")
	assert.Contains(t, out, "👀 리뷰 & 코멘트\n1. Alice ██████████ 4\n")
	assert.NotContains(t, out, "🐛")

	order := []string{"🏆", "💻", "🔀", "✅", "📝", "👀", "📈"}
	last := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		require.GreaterOrEqual(t, idx, 0, marker)
		assert.Greater(t, idx, last, marker)
		last = idx
	}

	assert.Contains(t, out, "• 활동 멤버: 2명\n")
	assert.Contains(t, out, "• PR: 생성 3 / 머지 2 / 닫힘 0 (머지율 67%)\n")
	assert.Contains(t, out, "• 코드: +1,300 / -50\n")
}

func TestRenderMonthlyLabels(t *testing.T) {
	out := Render(sampleStats(), weekStart, weekEnd, KindMonthly)
	assert.Contains(t, out, "📊 월간 GitHub 활동 리포트")
	assert.Contains(t, out, "이번 달 MVP")
}

func TestRenderIsDeterministic(t *testing.T) {
	first := Render(sampleStats(), weekStart, weekEnd, KindWeekly)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Render(sampleStats(), weekStart, weekEnd, KindWeekly))
	}
}

func TestRenderTopScorerTieUsesMemberID(t *testing.T) {
	x := stats.NewMemberStats("x", "Xavier")
	x.Commits = 1
	w := stats.NewMemberStats("w", "Wendy")
	w.Commits = 1

	out := Render(map[string]*stats.MemberStats{"x": x, "w": w}, weekStart, weekEnd, KindWeekly)
	assert.Contains(t, out, "MVP: Wendy (10점)")
	assert.Contains(t, out, "1. Wendy ██████████ 1\n2. Xavier ██████████ 1\n")
}

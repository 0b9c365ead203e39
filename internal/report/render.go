package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
)

// Kind selects the report period.
type Kind string

const (
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
)

// ParseKind accepts "weekly", "monthly" and their "-report" task-type forms.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "-report")) {
	case KindWeekly:
		return KindWeekly, nil
	case KindMonthly:
		return KindMonthly, nil
	}
	return "", fmt.Errorf("unknown report kind %q", s)
}

// TaskType is the background task type that generates this kind of report.
func (k Kind) TaskType() string {
	return string(k) + "-report"
}

func (k Kind) title() string {
	if k == KindMonthly {
		return "월간"
	}
	return "주간"
}

func (k Kind) mvpLabel() string {
	if k == KindMonthly {
		return "이번 달"
	}
	return "이번 주"
}

const dateLayout = "2006-01-02"

type entry struct {
	stats *stats.MemberStats
	score int
}

func (e entry) name() string {
	if e.stats.DisplayName != "" {
		return e.stats.DisplayName
	}
	return e.stats.MemberID
}

type section struct {
	title  string
	metric func(s *stats.MemberStats) int
	suffix func(s *stats.MemberStats) string
}

var sections = []section{
	{title: "💻 커밋", metric: func(s *stats.MemberStats) int { return s.Commits }},
	{title: "🔀 Pull Request 생성", metric: func(s *stats.MemberStats) int { return s.PullRequests }},
	{
		title:  "✅ Pull Request 머지",
		metric: func(s *stats.MemberStats) int { return s.PullRequestsMerged },
		suffix: func(s *stats.MemberStats) string {
			return fmt.Sprintf(" (머지율 %d%%)", MergeRate(s.PullRequestsMerged, s.PullRequests))
		},
	},
	{
		title:  "📝 코드 추가",
		metric: func(s *stats.MemberStats) int { return s.LinesAdded },
		suffix: func(s *stats.MemberStats) string {
			return fmt.Sprintf(" (-%s)", humanize.Comma(int64(s.LinesDeleted)))
		},
	},
	{title: "👀 리뷰 & 코멘트", metric: func(s *stats.MemberStats) int { return s.Reviews + s.PRComments }},
	{title: "🐛 이슈 (생성 + 해결)", metric: func(s *stats.MemberStats) int { return s.IssuesCreated + s.IssuesClosed }},
}

// Render formats member statistics for the period. Output depends only on the input
// values: every ranking is an explicit sort with member id as the final tiebreak.
func Render(memberStats map[string]*stats.MemberStats, start, end time.Time, kind Kind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s GitHub 활동 리포트\n", kind.title())
	fmt.Fprintf(&b, "📅 %s ~ %s\n", start.Format(dateLayout), end.Format(dateLayout))

	active := activeEntries(memberStats)
	if len(active) == 0 {
		b.WriteString("\n이번 기간에는 집계된 GitHub 활동이 없습니다.\n")
		return b.String()
	}

	top := active[0]
	for _, e := range active[1:] {
		if e.score > top.score {
			top = e
		}
	}
	fmt.Fprintf(&b, "\n🏆 %s MVP: %s (%s점) 축하합니다!\n", kind.mvpLabel(), top.name(), humanize.Comma(int64(top.score)))

	for _, sec := range sections {
		writeSection(&b, sec, active)
	}
	writeSummary(&b, active)
	return b.String()
}

// activeEntries returns members with any activity, ordered by member id.
func activeEntries(memberStats map[string]*stats.MemberStats) []entry {
	out := make([]entry, 0, len(memberStats))
	for _, s := range memberStats {
		if s != nil && s.Active() {
			out = append(out, entry{stats: s, score: Score(s)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].stats.MemberID < out[j].stats.MemberID })
	return out
}

func writeSection(b *strings.Builder, sec section, active []entry) {
	ranked := make([]entry, 0, len(active))
	max := 0
	for _, e := range active {
		v := sec.metric(e.stats)
		if v <= 0 {
			continue
		}
		ranked = append(ranked, e)
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := sec.metric(ranked[i].stats), sec.metric(ranked[j].stats)
		if vi != vj {
			return vi > vj
		}
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].stats.MemberID < ranked[j].stats.MemberID
	})

	fmt.Fprintf(b, "\n%s\n", sec.title)
	for i, e := range ranked {
		v := sec.metric(e.stats)
		fmt.Fprintf(b, "%d. %s %s %s", i+1, e.name(), Bar(v, max), humanize.Comma(int64(v)))
		if sec.suffix != nil {
			b.WriteString(sec.suffix(e.stats))
		}
		b.WriteByte('\n')
	}
}

func writeSummary(b *strings.Builder, active []entry) {
	var t stats.MemberStats
	for _, e := range active {
		s := e.stats
		t.Commits += s.Commits
		t.PullRequests += s.PullRequests
		t.PullRequestsMerged += s.PullRequestsMerged
		t.PullRequestsClosed += s.PullRequestsClosed
		t.LinesAdded += s.LinesAdded
		t.LinesDeleted += s.LinesDeleted
		t.PRComments += s.PRComments
		t.Reviews += s.Reviews
		t.IssuesCreated += s.IssuesCreated
		t.IssuesClosed += s.IssuesClosed
	}

	c := func(n int) string { return humanize.Comma(int64(n)) }
	b.WriteString("\n📈 요약\n")
	fmt.Fprintf(b, "• 활동 멤버: %d명\n", len(active))
	fmt.Fprintf(b, "• 커밋: %s\n", c(t.Commits))
	fmt.Fprintf(b, "• PR: 생성 %s / 머지 %s / 닫힘 %s (머지율 %d%%)\n",
		c(t.PullRequests), c(t.PullRequestsMerged), c(t.PullRequestsClosed),
		MergeRate(t.PullRequestsMerged, t.PullRequests))
	fmt.Fprintf(b, "• 코드: +%s / -%s\n", c(t.LinesAdded), c(t.LinesDeleted))
	fmt.Fprintf(b, "• 리뷰: %s, 코멘트: %s\n", c(t.Reviews), c(t.PRComments))
	fmt.Fprintf(b, "• 이슈: 생성 %s / 해결 %s\n", c(t.IssuesCreated), c(t.IssuesClosed))
}

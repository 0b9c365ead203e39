// Package report renders aggregated member statistics into a ranked chat message.
package report

import (
	"math"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
)

// Composite score weights.
const (
	weightCommit        = 10
	weightPullRequest   = 15
	weightMerged        = 20
	weightClosed        = -5
	weightLineAdded     = 0.01
	weightLineDeleted   = 0.005
	weightPRComment     = 5
	weightReview        = 8
	weightIssueCreated  = 3
	weightIssueResolved = 5
)

// Score returns the member's weighted contribution score rounded to the nearest integer.
func Score(s *stats.MemberStats) int {
	raw := float64(s.Commits)*weightCommit +
		float64(s.PullRequests)*weightPullRequest +
		float64(s.PullRequestsMerged)*weightMerged +
		float64(s.PullRequestsClosed)*weightClosed +
		float64(s.LinesAdded)*weightLineAdded +
		float64(s.LinesDeleted)*weightLineDeleted +
		float64(s.PRComments)*weightPRComment +
		float64(s.Reviews)*weightReview +
		float64(s.IssuesCreated)*weightIssueCreated +
		float64(s.IssuesClosed)*weightIssueResolved
	return int(math.Round(raw))
}

// MergeRate returns merged/created as a percentage, or 0 when nothing was created.
func MergeRate(merged, created int) int {
	if created <= 0 {
		return 0
	}
	return int(math.Round(float64(merged) * 100 / float64(created)))
}

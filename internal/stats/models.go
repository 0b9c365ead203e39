// Package stats aggregates repository activity into per-member counters for a report period.
package stats

import (
	"sort"
	"time"
)

// Repository identifies one repository to aggregate.
type Repository struct {
	Owner   string `json:"owner"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// FullName returns owner/name.
func (r Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Period is an inclusive time window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Stage tags a progress update.
type Stage string

const (
	StageMapping    Stage = "mapping"
	StageCollecting Stage = "collecting"
	StageAggregated Stage = "aggregated"
)

// ProgressFunc receives coarse progress updates. percent is in [0, 100].
type ProgressFunc func(percent int, message string, stage Stage)

// MemberStats accumulates one member's activity for one period. Counters only grow.
type MemberStats struct {
	MemberID           string   `json:"member_id"`
	DisplayName        string   `json:"display_name"`
	Commits            int      `json:"commits"`
	PullRequests       int      `json:"pull_requests"`
	PullRequestsMerged int      `json:"pull_requests_merged"`
	PullRequestsClosed int      `json:"pull_requests_closed"`
	LinesAdded         int      `json:"lines_added"`
	LinesDeleted       int      `json:"lines_deleted"`
	PRComments         int      `json:"pr_comments"`
	Reviews            int      `json:"reviews"`
	IssuesCreated      int      `json:"issues_created"`
	IssuesClosed       int      `json:"issues_closed"`
	Repositories       []string `json:"repositories"`

	touched map[string]struct{}
}

// NewMemberStats returns zero-valued stats for a member.
func NewMemberStats(memberID, displayName string) *MemberStats {
	return &MemberStats{
		MemberID:     memberID,
		DisplayName:  displayName,
		Repositories: []string{},
		touched:      make(map[string]struct{}),
	}
}

// Touch records that the member was active in repository.
func (s *MemberStats) Touch(repository string) {
	if s.touched == nil {
		s.touched = make(map[string]struct{})
	}
	if _, ok := s.touched[repository]; ok {
		return
	}
	s.touched[repository] = struct{}{}
	s.Repositories = append(s.Repositories, repository)
	sort.Strings(s.Repositories)
}

// Active reports whether any counter is nonzero.
func (s *MemberStats) Active() bool {
	return s.Commits > 0 || s.PullRequests > 0 || s.PullRequestsMerged > 0 ||
		s.PullRequestsClosed > 0 || s.LinesAdded > 0 || s.LinesDeleted > 0 ||
		s.PRComments > 0 || s.Reviews > 0 || s.IssuesCreated > 0 || s.IssuesClosed > 0
}

// UnattributedIdentity is an author that matched no roster member.
type UnattributedIdentity struct {
	Handle     string   `json:"handle,omitempty"`
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty"`
	Records    int      `json:"records"`
	Repositories []string `json:"repositories"`
}

// RepositoryFailure records a category that could not be fetched for a repository.
type RepositoryFailure struct {
	Repository string `json:"repository"`
	Category   string `json:"category"`
	Error      string `json:"error"`
}

// Result is the output of one aggregation run.
type Result struct {
	Period       Period                  `json:"period"`
	Members      []string                `json:"members"` // roster order
	Stats        map[string]*MemberStats `json:"stats"`
	Repositories []string                `json:"repositories"`
	Failures     []RepositoryFailure     `json:"failures,omitempty"`
	Unattributed []UnattributedIdentity  `json:"unattributed,omitempty"`
}

// ActiveMembers returns the number of members with any activity.
func (r *Result) ActiveMembers() int {
	n := 0
	for _, s := range r.Stats {
		if s.Active() {
			n++
		}
	}
	return n
}

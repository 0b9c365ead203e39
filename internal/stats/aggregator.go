package stats

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/tracing"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/identity"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/vcs"
)

var (
	// ErrNoRepositories is returned when no enabled repository was given.
	ErrNoRepositories = errors.New("no repositories configured")
	// ErrEmptyRoster is returned when the roster has no members.
	ErrEmptyRoster = errors.New("roster is empty")
)

const defaultRepositoryDelay = time.Second

// Aggregator collects activity from a VCS client and attributes it to roster members.
type Aggregator struct {
	client   vcs.Client
	resolver *identity.Resolver
	logger   *logger.Logger
	metrics  *metrics.Metrics
	delay    time.Duration
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRepositoryDelay sets the pause between repositories.
func WithRepositoryDelay(d time.Duration) Option {
	return func(a *Aggregator) { a.delay = d }
}

// WithMetrics records fetch errors and unattributed records on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// NewAggregator creates an aggregator over client. The resolver is re-initialised
// from the roster at the start of every run.
func NewAggregator(client vcs.Client, resolver *identity.Resolver, log *logger.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		client:   client,
		resolver: resolver,
		logger:   log.Component("stats-aggregator"),
		delay:    defaultRepositoryDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate collects activity for period across repositories, one repository at a time.
//
// A failed fetch zeroes that repository's contribution for the category and is listed
// in Result.Failures; it never fails the run. The run fails only on an empty roster, an
// empty repository list or a cancelled context, which is checked between fetches.
func (a *Aggregator) Aggregate(ctx context.Context, period Period, repos []Repository, members []roster.TeamMember, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string, Stage) {}
	}

	var enabled []Repository
	for _, r := range repos {
		if r.Enabled {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return nil, ErrNoRepositories
	}
	if len(members) == 0 {
		return nil, ErrEmptyRoster
	}

	a.resolver.Initialize(members)
	progress(5, "team mapping rebuilt", StageMapping)

	run := newRun(period, members)
	for i, repo := range enabled {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && a.delay > 0 {
			if err := sleep(ctx, a.delay); err != nil {
				return nil, err
			}
		}

		pct := 10 + i*80/len(enabled)
		progress(pct, fmt.Sprintf("collecting %s (%d/%d)", repo.FullName(), i+1, len(enabled)), StageCollecting)

		if err := a.collectRepository(ctx, run, repo); err != nil {
			return nil, err
		}
		run.result.Repositories = append(run.result.Repositories, repo.FullName())
	}

	result := run.finish()
	a.logger.Info("aggregation complete",
		zap.Int("repositories", len(enabled)),
		zap.Int("active_members", result.ActiveMembers()),
		zap.Int("unattributed_identities", len(result.Unattributed)),
		zap.Int("failures", len(result.Failures)))
	progress(90, "aggregation complete", StageAggregated)
	return result, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// collectRepository fetches each category in a fixed order. Only cancellation is returned.
func (a *Aggregator) collectRepository(ctx context.Context, run *aggregation, repo Repository) (err error) {
	ctx, span := tracing.TraceRepository(ctx, repo.Owner, repo.Name)
	defer func() {
		tracing.RecordResult(span, err)
		span.End()
	}()

	name := repo.FullName()
	log := a.logger.WithRepository(name)
	p := run.result.Period

	steps := []struct {
		category string
		fetch    func() error
	}{
		{vcs.CategoryCommits, func() error {
			commits, err := a.client.FetchCommits(ctx, repo.Owner, repo.Name, p.Start, p.End)
			if err != nil {
				return err
			}
			for _, c := range commits {
				if s := a.attribute(run, c.Author, name); s != nil {
					s.Commits++
					s.LinesAdded += nonNegative(c.Additions)
					s.LinesDeleted += nonNegative(c.Deletions)
				}
			}
			return nil
		}},
		{vcs.CategoryPullRequests, func() error {
			prs, err := a.client.FetchPullRequests(ctx, repo.Owner, repo.Name, p.Start, p.End)
			if err != nil {
				return err
			}
			for _, pr := range prs {
				s := a.attribute(run, pr.Author, name)
				if s == nil {
					continue
				}
				s.PullRequests++
				switch {
				case pr.Merged():
					s.PullRequestsMerged++
				case pr.State == vcs.StateClosed:
					s.PullRequestsClosed++
				}
				// PR line counts are added on top of commit line counts
				s.LinesAdded += nonNegative(pr.Additions)
				s.LinesDeleted += nonNegative(pr.Deletions)
			}
			return nil
		}},
		{vcs.CategoryReviewComments, func() error {
			comments, err := a.client.FetchReviewComments(ctx, repo.Owner, repo.Name, p.Start, p.End)
			if err != nil {
				return err
			}
			for _, c := range comments {
				if s := a.attribute(run, c.Author, name); s != nil {
					s.PRComments++
				}
			}
			return nil
		}},
		{vcs.CategoryReviews, func() error {
			reviews, err := a.client.FetchReviews(ctx, repo.Owner, repo.Name, p.Start, p.End)
			if err != nil {
				return err
			}
			for _, r := range reviews {
				if s := a.attribute(run, r.Author, name); s != nil {
					s.Reviews++
				}
			}
			return nil
		}},
		{vcs.CategoryIssues, func() error {
			issues, err := a.client.FetchIssues(ctx, repo.Owner, repo.Name, p.Start, p.End)
			if err != nil {
				return err
			}
			for _, is := range issues {
				s := a.attribute(run, is.Author, name)
				if s == nil {
					continue
				}
				if vcs.InWindow(is.CreatedAt, p.Start, p.End) {
					s.IssuesCreated++
				}
				if is.ClosedAt != nil && vcs.InWindow(*is.ClosedAt, p.Start, p.End) {
					s.IssuesClosed++
				}
			}
			return nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		ferr := step.fetch()
		if ferr == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("fetch failed, skipping category",
			zap.String("category", step.category),
			zap.Bool("retryable", vcs.IsRetryable(ferr)),
			zap.Error(ferr))
		a.metrics.FetchError(name, step.category)
		run.result.Failures = append(run.result.Failures, RepositoryFailure{
			Repository: name,
			Category:   step.category,
			Error:      ferr.Error(),
		})
	}
	return nil
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (a *Aggregator) attribute(run *aggregation, id vcs.Identity, repository string) *MemberStats {
	member := a.resolver.Resolve(id.Handle, id.Name, id.Email)
	if member == nil {
		run.unattributed(id, repository)
		a.metrics.Unattributed(repository)
		return nil
	}
	s, ok := run.result.Stats[member.ID]
	if !ok {
		return nil
	}
	s.Touch(repository)
	return s
}

// aggregation is the state of one Aggregate call. It is never shared between calls.
type aggregation struct {
	result     *Result
	unmatched  map[string]*UnattributedIdentity
	unmatchedR map[string]map[string]struct{}
}

func newRun(period Period, members []roster.TeamMember) *aggregation {
	r := &aggregation{
		result: &Result{
			Period:       period,
			Members:      make([]string, 0, len(members)),
			Stats:        make(map[string]*MemberStats, len(members)),
			Repositories: []string{},
		},
		unmatched:  make(map[string]*UnattributedIdentity),
		unmatchedR: make(map[string]map[string]struct{}),
	}
	for _, m := range members {
		if _, dup := r.result.Stats[m.ID]; dup {
			continue
		}
		r.result.Members = append(r.result.Members, m.ID)
		r.result.Stats[m.ID] = NewMemberStats(m.ID, m.DisplayName)
	}
	return r
}

func unattributedKey(id vcs.Identity) string {
	for _, k := range []string{id.Handle, id.Email, id.Name} {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			return k
		}
	}
	return "<unknown>"
}

func (r *aggregation) unattributed(id vcs.Identity, repository string) {
	key := unattributedKey(id)
	u, ok := r.unmatched[key]
	if !ok {
		u = &UnattributedIdentity{Handle: id.Handle, Name: id.Name, Email: id.Email}
		r.unmatched[key] = u
		r.unmatchedR[key] = make(map[string]struct{})
	}
	u.Records++
	if _, seen := r.unmatchedR[key][repository]; !seen {
		r.unmatchedR[key][repository] = struct{}{}
		u.Repositories = append(u.Repositories, repository)
	}
}

func (r *aggregation) finish() *Result {
	keys := make([]string, 0, len(r.unmatched))
	for k := range r.unmatched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := r.unmatched[keys[i]], r.unmatched[keys[j]]
		if a.Records != b.Records {
			return a.Records > b.Records
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		r.result.Unattributed = append(r.result.Unattributed, *r.unmatched[k])
	}
	return r.result
}

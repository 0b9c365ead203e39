// Package jobs orchestrates report generation and delivery on top of the
// aggregator, renderer, report store, task manager and notification service.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/report"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/roster"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/tasks"
)

// StageRendering tags the progress update emitted after aggregation.
const StageRendering = "rendering"

// Notifier delivers rendered text to a destination.
type Notifier interface {
	Deliver(ctx context.Context, text, destination string) error
}

// Outcome is the result value of a report task.
type Outcome struct {
	ReportID      string                       `json:"report_id"`
	Kind          report.Kind                  `json:"kind"`
	Period        stats.Period                 `json:"period"`
	ActiveMembers int                          `json:"active_members"`
	Repositories  []string                     `json:"repositories"`
	Failures      []stats.RepositoryFailure    `json:"failures,omitempty"`
	Unattributed  []stats.UnattributedIdentity `json:"unattributed,omitempty"`
}

// GenerateResult is what Generate hands back: either a fresh cached preview or the
// background task producing one.
type GenerateResult struct {
	Cached bool                `json:"cached"`
	Report *reportstore.Record `json:"report,omitempty"`
	Task   *tasks.Task         `json:"task,omitempty"`
}

// ReportService generates and sends team activity reports.
type ReportService struct {
	aggregator *stats.Aggregator
	roster     roster.Source
	repos      []stats.Repository
	store      *reportstore.Store
	tasks      *tasks.Manager
	notifier   Notifier
	logger     *logger.Logger

	freshness time.Duration
	loc       *time.Location
	now       func() time.Time
}

// Option configures a ReportService.
type Option func(*ReportService)

// WithFreshness sets how long a preview may be reused instead of regenerating.
func WithFreshness(d time.Duration) Option {
	return func(s *ReportService) { s.freshness = d }
}

// WithLocation sets the time zone report periods are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *ReportService) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

// NewReportService wires the report pipeline.
func NewReportService(
	aggregator *stats.Aggregator,
	source roster.Source,
	repos []stats.Repository,
	store *reportstore.Store,
	manager *tasks.Manager,
	notifier Notifier,
	log *logger.Logger,
	opts ...Option,
) *ReportService {
	s := &ReportService{
		aggregator: aggregator,
		roster:     source,
		repos:      repos,
		store:      store,
		tasks:      manager,
		notifier:   notifier,
		logger:     log.Component("report-service"),
		freshness:  24 * time.Hour,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate returns a cached preview younger than the freshness window unless force
// is set; otherwise it starts a background task that aggregates, renders and saves
// a new preview. If a task of the same kind is already running, that task is
// returned together with tasks.ErrTaskConflict.
func (s *ReportService) Generate(ctx context.Context, kind report.Kind, force bool) (*GenerateResult, error) {
	if !force {
		rec, err := s.store.LoadLatest(ctx, string(kind), s.freshness)
		switch {
		case err == nil:
			s.logger.Info("using cached preview",
				zap.String("kind", string(kind)),
				zap.String("report_id", rec.ID))
			return &GenerateResult{Cached: true, Report: rec}, nil
		case !errors.Is(err, reportstore.ErrNotFound):
			return nil, fmt.Errorf("load cached preview: %w", err)
		}
	}

	period := Period(kind, s.now(), s.loc)
	task, err := s.tasks.StartTask("", kind.TaskType(), map[string]interface{}{
		"kind":   kind,
		"period": period,
		"force":  force,
	}, s.work(kind, period))
	if err != nil {
		if task != nil {
			return &GenerateResult{Task: task}, err
		}
		return nil, fmt.Errorf("start report task: %w", err)
	}
	return &GenerateResult{Task: task}, nil
}

func (s *ReportService) work(kind report.Kind, period stats.Period) tasks.WorkFunc {
	return func(ctx context.Context, progress tasks.ProgressFunc) (interface{}, error) {
		members, err := s.roster.Members(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}

		result, err := s.aggregator.Aggregate(ctx, period, s.repos, members,
			func(percent int, message string, stage stats.Stage) {
				progress(percent, message, string(stage))
			})
		if err != nil {
			return nil, err
		}

		progress(95, "rendering report", StageRendering)
		text := report.Render(result.Stats, period.Start, period.End, kind)

		taskID, _ := ctx.Value(logger.TaskIDKey).(string)
		id, err := s.store.SavePreview(ctx, string(kind), text, reportstore.Metadata{
			PeriodStart:   period.Start,
			PeriodEnd:     period.End,
			ActiveMembers: result.ActiveMembers(),
			Repositories:  result.Repositories,
			TaskID:        taskID,
		})
		if err != nil {
			return nil, err
		}

		return &Outcome{
			ReportID:      id,
			Kind:          kind,
			Period:        period,
			ActiveMembers: result.ActiveMembers(),
			Repositories:  result.Repositories,
			Failures:      result.Failures,
			Unattributed:  result.Unattributed,
		}, nil
	}
}

// Build generates a preview and blocks until it is saved. A running task of the
// same kind is joined rather than duplicated.
func (s *ReportService) Build(ctx context.Context, kind report.Kind, force bool) (*reportstore.Record, error) {
	res, err := s.Generate(ctx, kind, force)
	if err != nil && !errors.Is(err, tasks.ErrTaskConflict) {
		return nil, err
	}
	if res.Cached {
		return res.Report, nil
	}

	task, err := s.tasks.Wait(ctx, res.Task.ID)
	if err != nil {
		return nil, fmt.Errorf("wait for report task: %w", err)
	}
	switch task.Status {
	case tasks.StatusCompleted:
	case tasks.StatusCancelled:
		return nil, fmt.Errorf("report task %s was cancelled", task.ID)
	default:
		return nil, fmt.Errorf("report task %s failed: %s", task.ID, task.Error)
	}

	outcome, ok := task.Result.(*Outcome)
	if !ok {
		return nil, fmt.Errorf("report task %s returned no report", task.ID)
	}
	return s.store.LoadByID(ctx, outcome.ReportID)
}

// Send delivers the latest fresh preview of kind, generating one first when none
// exists, then moves it to the archive. Nothing is archived when delivery fails.
func (s *ReportService) Send(ctx context.Context, kind report.Kind, destination string) (*reportstore.Record, error) {
	preview, err := s.Build(ctx, kind, false)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Deliver(ctx, preview.Content, destination); err != nil {
		return nil, fmt.Errorf("deliver %s report: %w", kind, err)
	}

	meta := preview.Metadata
	meta.Extra = map[string]string{"preview_id": preview.ID}
	if destination != "" {
		meta.Extra["sent_to"] = destination
	}
	id, err := s.store.Archive(ctx, preview.Kind, preview.Content, meta)
	if err != nil {
		return nil, fmt.Errorf("archive %s report: %w", kind, err)
	}
	if err := s.store.Delete(ctx, preview.ID); err != nil && !errors.Is(err, reportstore.ErrNotFound) {
		s.logger.Warn("failed to remove sent preview", zap.String("report_id", preview.ID), zap.Error(err))
	}

	s.logger.Info("report sent",
		zap.String("kind", string(kind)),
		zap.String("report_id", id),
		zap.String("destination", destination))
	return s.store.LoadByID(ctx, id)
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/report"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
)

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// sendTimeout bounds one scheduled send, including a full aggregation.
const sendTimeout = 30 * time.Minute

// Sender sends a report of kind to destination.
type Sender interface {
	Send(ctx context.Context, kind report.Kind, destination string) (*reportstore.Record, error)
}

// ScheduledJob describes one registered cron entry.
type ScheduledJob struct {
	Name        string      `json:"name"`
	Cron        string      `json:"cron"`
	Kind        report.Kind `json:"kind"`
	Destination string      `json:"destination,omitempty"`
	Next        time.Time   `json:"next"`
}

type registration struct {
	id  cron.EntryID
	job ScheduledJob
}

// Scheduler fires report sends on cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	sender Sender
	logger *logger.Logger

	mu      sync.RWMutex
	jobs    []registration
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler evaluating expressions in loc. Expressions use
// the standard five fields or descriptors such as "@weekly".
func NewScheduler(sender Sender, loc *time.Location, log *logger.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sender: sender,
		logger: log.Component("report-scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return s
}

// AddSchedules registers every enabled schedule.
func (s *Scheduler) AddSchedules(schedules []config.ScheduleConfig) error {
	for i, sc := range schedules {
		if !sc.Enabled {
			continue
		}
		if err := s.Add(sc); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
	}
	return nil
}

// Add registers one schedule.
func (s *Scheduler) Add(sc config.ScheduleConfig) error {
	kind, err := report.ParseKind(sc.Kind)
	if err != nil {
		return err
	}
	name := sc.Name
	if name == "" {
		name = string(kind)
	}
	job := ScheduledJob{Name: name, Cron: sc.Cron, Kind: kind, Destination: sc.Destination}

	id, err := s.cron.AddFunc(sc.Cron, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sc.Cron, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, registration{id: id, job: job})
	s.mu.Unlock()

	s.logger.Info("schedule registered",
		zap.String("name", name),
		zap.String("cron", sc.Cron),
		zap.String("kind", string(kind)))
	return nil
}

func (s *Scheduler) fire(job ScheduledJob) {
	ctx, cancel := context.WithTimeout(s.ctx, sendTimeout)
	defer cancel()

	log := s.logger.WithFields(zap.String("schedule", job.Name), zap.String("kind", string(job.Kind)))
	log.Info("scheduled send starting")
	rec, err := s.sender.Send(ctx, job.Kind, job.Destination)
	if err != nil {
		log.Error("scheduled send failed", zap.Error(err))
		return
	}
	log.Info("scheduled send finished", zap.String("report_id", rec.ID))
}

// Start begins firing schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("schedules", len(s.jobs)))
	return nil
}

// Stop stops firing, cancels in-flight sends and waits for them to return or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	s.cancel()
	select {
	case <-stopped.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether Start has been called without Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Jobs returns the registered schedules ordered by next fire time. Next is zero
// until the scheduler is started.
func (s *Scheduler) Jobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ScheduledJob, 0, len(s.jobs))
	for _, r := range s.jobs {
		job := r.job
		job.Next = s.cron.Entry(r.id).Next
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

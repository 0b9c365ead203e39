package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/tracing"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
)

type entry struct {
	task   Task
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager tracks background tasks in memory.
type Manager struct {
	logger  *logger.Logger
	bus     bus.EventBus
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	tasks   map[string]*entry
	running map[string]string // task type -> id of its running task
	closed  bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	totalStarted int64
	totalFailed  int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus publishes task lifecycle events on b.
func WithEventBus(b bus.EventBus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithMetrics records task counts and durations on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty task manager.
func NewManager(log *logger.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:     log.Component("task-manager"),
		now:        time.Now,
		tasks:      make(map[string]*entry),
		running:    make(map[string]string),
		baseCtx:    ctx,
		cancelBase: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartTask registers a running task and executes work on its own goroutine.
// An empty taskID gets a generated one. If a task of taskType is already running,
// StartTask returns that task together with ErrTaskConflict.
func (m *Manager) StartTask(taskID, taskType string, payload interface{}, work WorkFunc) (*Task, error) {
	if taskID == "" {
		taskID = uuid.New().String()
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if runningID, ok := m.running[taskType]; ok {
		existing := m.tasks[runningID].task
		m.mu.Unlock()
		return &existing, ErrTaskConflict
	}
	if _, exists := m.tasks[taskID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, taskID)
	}

	now := m.now().UTC()
	ctx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{
		task: Task{
			ID:        taskID,
			Type:      taskType,
			Status:    StatusRunning,
			Payload:   payload,
			Progress:  Progress{Message: "started", UpdatedAt: now},
			CreatedAt: now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.tasks[taskID] = e
	m.running[taskType] = taskID
	snapshot := e.task
	m.wg.Add(1)
	m.mu.Unlock()

	atomic.AddInt64(&m.totalStarted, 1)
	m.metrics.TaskStarted(taskType)
	m.logger.Info("task started", zap.String("task_id", taskID), zap.String("type", taskType))
	m.publish(events.TaskStarted, snapshot)

	go m.run(ctx, e, work)
	return &snapshot, nil
}

func (m *Manager) run(ctx context.Context, e *entry, work WorkFunc) {
	defer m.wg.Done()
	defer close(e.done)

	taskID, taskType := e.task.ID, e.task.Type
	ctx = context.WithValue(ctx, logger.TaskIDKey, taskID)
	ctx, span := tracing.TraceTask(ctx, taskID, taskType)

	result, err := m.invoke(ctx, work, func(percent int, message, stage string) {
		m.updateProgress(e, percent, message, stage)
	})
	tracing.RecordResult(span, err)
	span.End()

	m.finish(e, result, err, ctx.Err() != nil)
}

// invoke runs work and converts a panic into an error.
func (m *Manager) invoke(ctx context.Context, work WorkFunc, progress ProgressFunc) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return work(ctx, progress)
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func (m *Manager) updateProgress(e *entry, percent int, message, stage string) {
	m.mu.Lock()
	if e.task.Status != StatusRunning {
		m.mu.Unlock()
		return
	}
	e.task.Progress = Progress{
		Percent:   clamp(percent),
		Message:   message,
		Stage:     stage,
		UpdatedAt: m.now().UTC(),
	}
	snapshot := e.task
	m.mu.Unlock()

	m.logger.Debug("task progress",
		zap.String("task_id", snapshot.ID),
		zap.Int("percent", snapshot.Progress.Percent),
		zap.String("stage", stage),
		zap.String("message", message))
	m.publish(events.TaskProgress, snapshot)
}

func (m *Manager) finish(e *entry, result interface{}, err error, ctxDone bool) {
	m.mu.Lock()
	if e.task.Status.Terminal() {
		// cancelled while running; the late result is dropped
		m.mu.Unlock()
		m.logger.Info("cancelled task returned",
			zap.String("task_id", e.task.ID),
			zap.Bool("had_error", err != nil))
		return
	}

	finished := m.now().UTC()
	e.task.FinishedAt = &finished
	switch {
	case err != nil && ctxDone && errors.Is(err, context.Canceled):
		e.task.Status = StatusCancelled
		e.task.Error = err.Error()
	case err != nil:
		e.task.Status = StatusFailed
		e.task.Error = err.Error()
	default:
		e.task.Status = StatusCompleted
		e.task.Result = result
		e.task.Progress = Progress{Percent: 100, Message: "completed", Stage: e.task.Progress.Stage, UpdatedAt: finished}
	}
	if m.running[e.task.Type] == e.task.ID {
		delete(m.running, e.task.Type)
	}
	e.cancel()
	snapshot := e.task
	m.mu.Unlock()

	elapsed := finished.Sub(snapshot.CreatedAt)
	m.metrics.TaskFinished(snapshot.Type, string(snapshot.Status), elapsed)

	log := m.logger.WithTaskID(snapshot.ID)
	switch snapshot.Status {
	case StatusCompleted:
		log.Info("task completed", zap.String("type", snapshot.Type), zap.Duration("elapsed", elapsed))
		m.publish(events.TaskCompleted, snapshot)
	case StatusCancelled:
		log.Info("task cancelled", zap.String("type", snapshot.Type))
		m.publish(events.TaskCancelled, snapshot)
	default:
		atomic.AddInt64(&m.totalFailed, 1)
		log.Error("task failed", zap.String("type", snapshot.Type), zap.String("error", snapshot.Error))
		m.publish(events.TaskFailed, snapshot)
	}
}

func (m *Manager) publish(eventType string, t Task) {
	if m.bus == nil {
		return
	}
	ev := bus.NewEvent(eventType, "task-manager", t)
	if err := m.bus.Publish(context.Background(), events.TaskSubject(eventType, t.ID), ev); err != nil {
		m.logger.Warn("failed to publish task event", zap.String("type", eventType), zap.Error(err))
	}
}

// GetTaskStatus returns a snapshot of the task.
func (m *Manager) GetTaskStatus(taskID string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	t := e.task
	return &t, nil
}

// CancelTask marks a running task cancelled and cancels its context. The task body
// may keep running until its next cancellation check; it can never become completed.
func (m *Manager) CancelTask(taskID string) (*Task, error) {
	m.mu.Lock()
	e, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrTaskNotFound
	}
	if e.task.Status != StatusRunning {
		t := e.task
		m.mu.Unlock()
		return &t, ErrTaskNotActive
	}
	finished := m.now().UTC()
	e.task.Status = StatusCancelled
	e.task.FinishedAt = &finished
	e.task.Progress.Message = "cancelled"
	e.task.Progress.UpdatedAt = finished
	if m.running[e.task.Type] == taskID {
		delete(m.running, e.task.Type)
	}
	e.cancel()
	snapshot := e.task
	m.mu.Unlock()

	m.metrics.TaskFinished(snapshot.Type, string(StatusCancelled), finished.Sub(snapshot.CreatedAt))
	m.logger.Info("task cancel requested", zap.String("task_id", taskID), zap.String("type", snapshot.Type))
	m.publish(events.TaskCancelled, snapshot)
	return &snapshot, nil
}

// GetRunningTasks returns running tasks, oldest first.
func (m *Manager) GetRunningTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.running))
	for _, id := range m.running {
		out = append(out, m.tasks[id].task)
	}
	sortTasks(out)
	return out
}

// ListTasks returns every retained task, oldest first.
func (m *Manager) ListTasks() []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		out = append(out, e.task)
	}
	sortTasks(out)
	return out
}

func sortTasks(ts []Task) {
	sort.Slice(ts, func(i, j int) bool {
		if !ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].CreatedAt.Before(ts[j].CreatedAt)
		}
		return ts[i].ID < ts[j].ID
	})
}

// HasRunningTaskOfType reports whether a task of taskType is running.
func (m *Manager) HasRunningTaskOfType(taskType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.running[taskType]
	return ok
}

// CleanupOldTasks removes terminal tasks that finished at least maxAge ago and
// returns how many were removed. Running tasks are never removed.
func (m *Manager) CleanupOldTasks(maxAge time.Duration) int {
	cutoff := m.now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.tasks {
		if !e.task.Status.Terminal() || e.task.FinishedAt == nil {
			continue
		}
		if e.task.FinishedAt.After(cutoff) {
			continue
		}
		delete(m.tasks, id)
		removed++
	}
	if removed > 0 {
		m.logger.Info("old tasks purged", zap.Int("count", removed), zap.Duration("max_age", maxAge))
	}
	return removed
}

// Wait blocks until the task's goroutine has returned or ctx is done, then returns
// its snapshot. For a cancelled task this waits for the body to actually exit.
func (m *Manager) Wait(ctx context.Context, taskID string) (*Task, error) {
	m.mu.RLock()
	e, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	select {
	case <-e.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.GetTaskStatus(taskID)
}

// Stats returns the lifetime counters.
func (m *Manager) Stats() (started, failed int64) {
	return atomic.LoadInt64(&m.totalStarted), atomic.LoadInt64(&m.totalFailed)
}

// Shutdown rejects new tasks, cancels running ones and waits for them to return.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelBase()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}

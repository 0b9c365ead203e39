package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m := NewManager(logger.NewNop(), opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitFor(t *testing.T, m *Manager, id string) *Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return task
}

// blockingWork runs until release is closed or ctx is cancelled.
func blockingWork(release <-chan struct{}) WorkFunc {
	return func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
		progress(50, "halfway", "collecting")
		select {
		case <-release:
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestStartTaskCompletes(t *testing.T) {
	m := newTestManager(t, WithMetrics(metrics.New()))

	task, err := m.StartTask("t1", "weekly-report", map[string]string{"kind": "weekly"},
		func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
			progress(150, "too far", "rendering")
			return "report-id", nil
		})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, task.Status)

	final := waitFor(t, m, "t1")
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "report-id", final.Result)
	assert.Equal(t, 100, final.Progress.Percent)
	require.NotNil(t, final.FinishedAt)
	assert.False(t, m.HasRunningTaskOfType("weekly-report"))

	started, failed := m.Stats()
	assert.Equal(t, int64(1), started)
	assert.Equal(t, int64(0), failed)
}

func TestStartTaskGeneratesID(t *testing.T) {
	m := newTestManager(t)
	task, err := m.StartTask("", "x", nil, func(context.Context, ProgressFunc) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	waitFor(t, m, task.ID)
}

func TestOneRunningTaskPerType(t *testing.T) {
	m := newTestManager(t)
	release := make(chan struct{})

	first, err := m.StartTask("w1", "weekly-report", nil, blockingWork(release))
	require.NoError(t, err)

	second, err := m.StartTask("w2", "weekly-report", nil, blockingWork(release))
	assert.ErrorIs(t, err, ErrTaskConflict)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)

	_, err = m.GetTaskStatus("w2")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	// a different type is independent
	_, err = m.StartTask("m1", "monthly-report", nil, blockingWork(release))
	require.NoError(t, err)

	running := m.GetRunningTasks()
	require.Len(t, running, 2)
	assert.True(t, m.HasRunningTaskOfType("weekly-report"))
	assert.True(t, m.HasRunningTaskOfType("monthly-report"))

	close(release)
	waitFor(t, m, "w1")
	waitFor(t, m, "m1")

	// slot is free again once the first one finished
	_, err = m.StartTask("w3", "weekly-report", nil, func(context.Context, ProgressFunc) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	waitFor(t, m, "w3")
}

func TestConcurrentStartsCollapseToOne(t *testing.T) {
	m := newTestManager(t)
	release := make(chan struct{})
	defer close(release)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ids := map[string]int{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := m.StartTask("", "weekly-report", nil, blockingWork(release))
			if err != nil && !errors.Is(err, ErrTaskConflict) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			mu.Lock()
			ids[task.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Len(t, m.GetRunningTasks(), 1)
}

func TestCancelTaskNeverCompletes(t *testing.T) {
	m := newTestManager(t)

	started := make(chan struct{})
	finish := make(chan struct{})
	// ignores cancellation and would report success
	_, err := m.StartTask("c1", "weekly-report", nil, func(ctx context.Context, progress ProgressFunc) (interface{}, error) {
		close(started)
		<-finish
		progress(90, "late progress", "rendering")
		return "late result", nil
	})
	require.NoError(t, err)
	<-started

	cancelled, err := m.CancelTask("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.False(t, m.HasRunningTaskOfType("weekly-report"))

	close(finish)
	final := waitFor(t, m, "c1")
	assert.Equal(t, StatusCancelled, final.Status)
	assert.Nil(t, final.Result)
	assert.Equal(t, "cancelled", final.Progress.Message)

	_, err = m.CancelTask("c1")
	assert.ErrorIs(t, err, ErrTaskNotActive)
	_, err = m.CancelTask("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestCooperativeCancellation(t *testing.T) {
	m := newTestManager(t)
	_, err := m.StartTask("c2", "weekly-report", nil, blockingWork(make(chan struct{})))
	require.NoError(t, err)

	_, err = m.CancelTask("c2")
	require.NoError(t, err)

	final := waitFor(t, m, "c2")
	assert.Equal(t, StatusCancelled, final.Status)
}

func TestFailedAndPanickingTasks(t *testing.T) {
	m := newTestManager(t)

	_, err := m.StartTask("f1", "a", nil, func(context.Context, ProgressFunc) (interface{}, error) {
		return nil, errors.New("no repositories configured")
	})
	require.NoError(t, err)
	_, err = m.StartTask("p1", "b", nil, func(context.Context, ProgressFunc) (interface{}, error) {
		panic("boom")
	})
	require.NoError(t, err)

	f := waitFor(t, m, "f1")
	assert.Equal(t, StatusFailed, f.Status)
	assert.Equal(t, "no repositories configured", f.Error)

	p := waitFor(t, m, "p1")
	assert.Equal(t, StatusFailed, p.Status)
	assert.Contains(t, p.Error, "boom")

	_, failed := m.Stats()
	assert.Equal(t, int64(2), failed)
}

func TestDuplicateTaskID(t *testing.T) {
	m := newTestManager(t)
	noop := func(context.Context, ProgressFunc) (interface{}, error) { return nil, nil }

	_, err := m.StartTask("same", "a", nil, noop)
	require.NoError(t, err)
	waitFor(t, m, "same")

	_, err = m.StartTask("same", "b", nil, noop)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCleanupOldTasks(t *testing.T) {
	now := time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	m := newTestManager(t, WithClock(clock))
	release := make(chan struct{})
	defer close(release)

	_, err := m.StartTask("old", "a", nil, func(context.Context, ProgressFunc) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	waitFor(t, m, "old")

	_, err = m.StartTask("running", "b", nil, blockingWork(release))
	require.NoError(t, err)

	advance(25 * time.Hour)

	_, err = m.StartTask("recent", "c", nil, func(context.Context, ProgressFunc) (interface{}, error) { return nil, nil })
	require.NoError(t, err)
	waitFor(t, m, "recent")

	assert.Equal(t, 1, m.CleanupOldTasks(24*time.Hour))

	_, err = m.GetTaskStatus("old")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = m.GetTaskStatus("running")
	assert.NoError(t, err)
	_, err = m.GetTaskStatus("recent")
	assert.NoError(t, err)
	assert.Len(t, m.ListTasks(), 2)
}

func TestShutdownRejectsNewTasks(t *testing.T) {
	m := NewManager(logger.NewNop())
	_, err := m.StartTask("s1", "a", nil, blockingWork(make(chan struct{})))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	task, err := m.GetTaskStatus("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, task.Status)

	_, err = m.StartTask("s2", "a", nil, blockingWork(make(chan struct{})))
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestLifecycleEventsPublished(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()

	completed := make(chan Task, 1)
	_, err := eventBus.Subscribe(events.TaskCompleted+".>", func(_ context.Context, ev *bus.Event) error {
		var task Task
		if err := ev.DecodeData(&task); err != nil {
			return err
		}
		completed <- task
		return nil
	})
	require.NoError(t, err)

	m := newTestManager(t, WithEventBus(eventBus))
	_, err = m.StartTask("e1", "weekly-report", nil, func(context.Context, ProgressFunc) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	select {
	case task := <-completed:
		assert.Equal(t, "e1", task.ID)
		assert.Equal(t, StatusCompleted, task.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no task.completed event")
	}
}

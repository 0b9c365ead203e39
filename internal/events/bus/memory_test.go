package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	received := make(chan *Event, 1)
	sub, err := b.Subscribe("report.archived", func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	event := NewEvent("report.archived", "test", map[string]interface{}{"id": "r-1"})
	require.NoError(t, b.Publish(context.Background(), "report.archived", event))

	select {
	case e := <-received:
		assert.Equal(t, event.ID, e.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryEventBus_Wildcards(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	var single, multi int32
	_, err := b.Subscribe("task.progress.*", func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&single, 1)
		return nil
	})
	require.NoError(t, err)
	_, err = b.Subscribe("task.>", func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&multi, 1)
		return nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "task.progress.abc", NewEvent("task.progress", "test", nil)))
	require.NoError(t, b.Publish(ctx, "task.completed.abc", NewEvent("task.completed", "test", nil)))
	require.NoError(t, b.Publish(ctx, "report.archived", NewEvent("report.archived", "test", nil)))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&single) == 1 && atomic.LoadInt32(&multi) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryEventBus_Unsubscribe(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	var count int32
	sub, err := b.Subscribe("roster.reloaded", func(ctx context.Context, e *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	require.NoError(t, b.Publish(context.Background(), "roster.reloaded", NewEvent("roster.reloaded", "test", nil)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&count))
}

func TestMemoryEventBus_Closed(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	b.Close()

	assert.False(t, b.IsConnected())
	assert.Error(t, b.Publish(context.Background(), "x", NewEvent("x", "test", nil)))
	_, err := b.Subscribe("x", func(ctx context.Context, e *Event) error { return nil })
	assert.Error(t, err)
}

func TestEventDecodeData(t *testing.T) {
	type payload struct {
		ReportID string `json:"report_id"`
		Kind     string `json:"kind"`
	}
	e := NewEvent("report.archived", "test", map[string]interface{}{"report_id": "r-9", "kind": "weekly"})

	var out payload
	require.NoError(t, e.DecodeData(&out))
	assert.Equal(t, "r-9", out.ReportID)
	assert.Equal(t, "weekly", out.Kind)
}

func TestMemoryEventBus_Ordered(t *testing.T) {
	b := NewMemoryEventBus(logger.NewNop())
	defer b.Close()

	var mu sync.Mutex
	var got []string
	_, err := b.Subscribe("task.progress.t1", func(ctx context.Context, e *Event) error {
		mu.Lock()
		got = append(got, e.Source)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	want := []string{"10", "20", "30", "40", "50"}
	for _, pct := range want {
		require.NoError(t, b.Publish(context.Background(), "task.progress.t1", NewEvent("task.progress", pct, nil)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, want, got)
	mu.Unlock()
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"task.completed.abc", "task.completed.abc", true},
		{"task.*.abc", "task.failed.abc", true},
		{"task.*.abc", "task.failed.xyz", false},
		{"task.>", "task.progress.abc", true},
		{"task.>", "task", false},
		{"task.completed", "task.completed.abc", false},
		{"task.completed.>", "task.completed.abc", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.subject, func(t *testing.T) {
			got := subjectMatches(strings.Split(tt.pattern, "."), strings.Split(tt.subject, "."))
			assert.Equal(t, tt.want, got)
		})
	}
}

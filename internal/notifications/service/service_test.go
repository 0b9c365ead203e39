package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/blob"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/notifications/providers"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
)

type fakeProvider struct {
	mu   sync.Mutex
	sent []providers.Message
	err  error
}

func (f *fakeProvider) Name() string    { return "fake" }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) Send(_ context.Context, m providers.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakeProvider) messages() []providers.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]providers.Message(nil), f.sent...)
}

func TestDeliverRouting(t *testing.T) {
	tests := []struct {
		name        string
		defaultDest string
		destination string
		wantTeam    int
		wantOps     int
		wantErr     error
	}{
		{name: "explicit destination", destination: "ops", wantOps: 1},
		{name: "default destination", defaultDest: "team", wantTeam: 1},
		{name: "broadcast without default", wantTeam: 1, wantOps: 1},
		{name: "unknown destination", destination: "nope", wantErr: ErrUnknownDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			team, ops := &fakeProvider{}, &fakeProvider{}
			s := NewService(logger.NewNop(), WithDefaultDestination(tt.defaultDest))
			require.NoError(t, s.Register("team", team))
			require.NoError(t, s.Register("ops", ops))

			err := s.Deliver(context.Background(), "📊 주간 리포트\n\nbody", tt.destination)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, team.messages(), tt.wantTeam)
			assert.Len(t, ops.messages(), tt.wantOps)
		})
	}
}

func TestDeliverMessageShape(t *testing.T) {
	p := &fakeProvider{}
	s := NewService(logger.NewNop())
	require.NoError(t, s.Register("team", p))

	require.NoError(t, s.Deliver(context.Background(), "\n📊 주간 GitHub 활동 리포트\n📅 range", ""))
	msgs := p.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "📊 주간 GitHub 활동 리포트", msgs[0].Title)
	assert.Equal(t, "team", msgs[0].Channel)
}

func TestDeliverJoinsFailures(t *testing.T) {
	m := metrics.New()
	ok := &fakeProvider{}
	broken := &fakeProvider{err: errors.New("connection refused")}
	s := NewService(logger.NewNop(), WithMetrics(m))
	require.NoError(t, s.Register("broken", broken))
	require.NoError(t, s.Register("ok", ok))

	err := s.Deliver(context.Background(), "text", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel broken")
	assert.Len(t, ok.messages(), 1)

	count, err := testutil.GatherAndCount(m.Registry(), "naverworks_cron_deliveries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count) // fake/success and fake/failure
}

func TestDeliverWithoutChannels(t *testing.T) {
	s := NewService(logger.NewNop())
	assert.ErrorIs(t, s.Deliver(context.Background(), "x", ""), ErrNoChannels)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := NewService(logger.NewNop())
	require.NoError(t, s.Register("team", &fakeProvider{}))
	assert.Error(t, s.Register("team", &fakeProvider{}))
	assert.Error(t, s.Register("", &fakeProvider{}))
	assert.Equal(t, []string{"team"}, s.Channels())
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.NotificationsConfig{
		DefaultDestination: "dry",
		Channels: []config.ChannelConfig{
			{Name: "dry", Provider: "log"},
			{Name: "team", Provider: "webhook", URL: "https://hooks.example.com/x"},
			{Name: "fanout", Provider: "apprise", URLs: []string{"json://localhost"}},
		},
	}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"dry", "team", "fanout"}, s.Channels())
	assert.NoError(t, s.Deliver(context.Background(), "hello", ""))

	_, err = FromConfig(config.NotificationsConfig{DefaultDestination: "missing"}, logger.NewNop())
	assert.ErrorIs(t, err, ErrUnknownDestination)

	_, err = FromConfig(config.NotificationsConfig{
		Channels: []config.ChannelConfig{{Name: "x", Provider: "pigeon"}},
	}, logger.NewNop())
	assert.Error(t, err)
}

func TestWatchDeliversArchivedReports(t *testing.T) {
	eventBus := bus.NewMemoryEventBus(logger.NewNop())
	defer eventBus.Close()

	p := &fakeProvider{}
	s := NewService(logger.NewNop())
	require.NoError(t, s.Register("team", p))
	sub, err := s.Watch(eventBus)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()

	store := reportstore.New(mustFS(t), logger.NewNop(), reportstore.WithEventBus(eventBus))
	ctx := context.Background()

	// archived without a destination: not delivered
	_, err = store.Archive(ctx, "weekly", "silent", reportstore.Metadata{})
	require.NoError(t, err)
	_, err = store.Archive(ctx, "weekly", "delivered", reportstore.Metadata{
		Extra: map[string]string{reportstore.ExtraDeliverTo: "team"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(p.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	msgs := p.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "delivered", msgs[0].Body)
}

func mustFS(t *testing.T) blob.Store {
	t.Helper()
	fs, err := blob.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return fs
}

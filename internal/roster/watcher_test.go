package roster

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoster), 0o644))

	src := NewFileSource(path)
	_, err := src.Members(context.Background())
	require.NoError(t, err)

	reloaded := make(chan []TeamMember, 4)
	w := NewWatcher(src, func(_ context.Context, members []TeamMember) {
		reloaded <- members
	}, logger.NewNop())
	w.debounce = 20 * time.Millisecond

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	updated := sampleRoster + "  - id: third\n    name: Third\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case members := <-reloaded:
		assert.Len(t, members, 3)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload roster")
	}
}

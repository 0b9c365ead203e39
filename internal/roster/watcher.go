package roster

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a FileSource when its file changes and then calls onReload.
type Watcher struct {
	source   *FileSource
	onReload func(ctx context.Context, members []TeamMember)
	logger   *logger.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for source. onReload runs after every successful reload.
func NewWatcher(source *FileSource, onReload func(ctx context.Context, members []TeamMember), log *logger.Logger) *Watcher {
	return &Watcher{
		source:   source,
		onReload: onReload,
		logger:   log.Component("roster-watcher"),
		debounce: defaultDebounce,
	}
}

// Start begins watching. The parent directory is watched so editors that replace the
// file with a rename are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create roster watcher: %w", err)
	}
	dir := filepath.Dir(w.source.Path())
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watcher = fw

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.loop(ctx)

	w.logger.Info("watching roster file", zap.String("path", w.source.Path()))
	return nil
}

// Stop ends the watch loop.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.watcher != nil {
		_ = w.watcher.Close()
	}
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	target := filepath.Clean(w.source.Path())
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("roster watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if err := w.source.Reload(ctx); err != nil {
		w.logger.Warn("roster reload failed, keeping previous roster", zap.Error(err))
		return
	}
	members, err := w.source.Members(ctx)
	if err != nil {
		w.logger.Warn("roster read failed after reload", zap.Error(err))
		return
	}
	w.logger.Info("roster reloaded", zap.Int("members", len(members)))
	if w.onReload != nil {
		w.onReload(ctx, members)
	}
}

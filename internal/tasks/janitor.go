package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartJanitor purges old finished tasks every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval, maxAge time.Duration) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.logger.Info("task janitor started",
			zap.Duration("interval", interval),
			zap.Duration("max_age", maxAge))
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.baseCtx.Done():
				return
			case <-ticker.C:
				m.CleanupOldTasks(maxAge)
			}
		}
	}()
}

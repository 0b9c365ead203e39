package events

import (
	"fmt"
	"strings"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
)

// Provide builds the configured event bus implementation.
func Provide(cfg *config.Config, log *logger.Logger) (bus.EventBus, func() error, error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, func() error { natsBus.Close(); return nil }, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return memBus, func() error { memBus.Close(); return nil }, nil
}

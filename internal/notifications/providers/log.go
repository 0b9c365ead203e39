package providers

import (
	"context"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

// LogProvider writes messages to the application log. Useful for dry runs.
type LogProvider struct {
	logger *logger.Logger
}

func NewLogProvider(log *logger.Logger) *LogProvider {
	return &LogProvider{logger: log.Component("log-notifier")}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) Available() bool { return true }

func (p *LogProvider) Send(_ context.Context, message Message) error {
	p.logger.Info("notification",
		zap.String("channel", message.Channel),
		zap.String("title", message.Title),
		zap.String("body", message.Body))
	return nil
}

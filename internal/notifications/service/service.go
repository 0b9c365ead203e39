// Package service routes report text to the configured delivery channels.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/events/bus"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/metrics"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/notifications/providers"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/reportstore"
)

var (
	ErrUnknownDestination = errors.New("unknown notification destination")
	ErrNoChannels         = errors.New("no notification channels configured")
)

type channel struct {
	name     string
	provider providers.Provider
}

// Service delivers messages to named channels.
type Service struct {
	logger             *logger.Logger
	metrics            *metrics.Metrics
	channels           []channel
	defaultDestination string
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics counts deliveries per provider.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDefaultDestination sets the channel used when Deliver gets no destination.
func WithDefaultDestination(name string) Option {
	return func(s *Service) { s.defaultDestination = name }
}

// NewService creates a service without channels.
func NewService(log *logger.Logger, opts ...Option) *Service {
	s := &Service{logger: log.Component("notifications-service")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig builds a service with one channel per configured entry.
func FromConfig(cfg config.NotificationsConfig, log *logger.Logger, opts ...Option) (*Service, error) {
	opts = append([]Option{WithDefaultDestination(cfg.DefaultDestination)}, opts...)
	s := NewService(log, opts...)
	for _, ch := range cfg.Channels {
		var p providers.Provider
		switch ch.Provider {
		case "webhook":
			p = providers.NewWebhookProvider(ch.URL, nil)
		case "apprise":
			p = providers.NewAppriseProvider(ch.URLs)
		case "log":
			p = providers.NewLogProvider(log)
		default:
			return nil, fmt.Errorf("channel %q: unknown provider %q", ch.Name, ch.Provider)
		}
		if err := s.Register(ch.Name, p); err != nil {
			return nil, err
		}
	}
	if s.defaultDestination != "" && s.lookup(s.defaultDestination) == nil {
		return nil, fmt.Errorf("%w: default %q", ErrUnknownDestination, s.defaultDestination)
	}
	return s, nil
}

// Register adds a named channel. Names must be unique.
func (s *Service) Register(name string, p providers.Provider) error {
	if name == "" {
		return fmt.Errorf("channel name is required")
	}
	if s.lookup(name) != nil {
		return fmt.Errorf("duplicate channel %q", name)
	}
	s.channels = append(s.channels, channel{name: name, provider: p})
	if !p.Available() {
		s.logger.Warn("notification channel unavailable",
			zap.String("channel", name),
			zap.String("provider", p.Name()))
	}
	return nil
}

// Channels returns the registered channel names in registration order.
func (s *Service) Channels() []string {
	names := make([]string, len(s.channels))
	for i, ch := range s.channels {
		names[i] = ch.name
	}
	return names
}

func (s *Service) lookup(name string) *channel {
	for i := range s.channels {
		if s.channels[i].name == name {
			return &s.channels[i]
		}
	}
	return nil
}

// Deliver sends text to destination. An empty destination falls back to the default
// channel, and with no default the text goes to every channel. Failures of individual
// channels are joined into the returned error.
func (s *Service) Deliver(ctx context.Context, text, destination string) error {
	if len(s.channels) == 0 {
		return ErrNoChannels
	}
	if destination == "" {
		destination = s.defaultDestination
	}

	targets := s.channels
	if destination != "" {
		ch := s.lookup(destination)
		if ch == nil {
			return fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
		}
		targets = []channel{*ch}
	}

	msg := providers.Message{Title: titleOf(text), Body: text}
	var errs []error
	for _, ch := range targets {
		msg.Channel = ch.name
		err := ch.provider.Send(ctx, msg)
		s.metrics.Delivery(ch.provider.Name(), err)
		if err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("channel", ch.name),
				zap.String("provider", ch.provider.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.name, err))
			continue
		}
		s.logger.Info("notification delivered",
			zap.String("channel", ch.name),
			zap.String("provider", ch.provider.Name()),
			zap.Int("bytes", len(text)))
	}
	return errors.Join(errs...)
}

// titleOf returns the first non-empty line of text.
func titleOf(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Watch delivers archived reports that carry a deliver_to destination.
func (s *Service) Watch(b bus.EventBus) (bus.Subscription, error) {
	return b.Subscribe(events.ReportArchived, func(ctx context.Context, ev *bus.Event) error {
		var rec reportstore.Record
		if err := ev.DecodeData(&rec); err != nil {
			return err
		}
		dest, ok := rec.Metadata.Extra[reportstore.ExtraDeliverTo]
		if !ok {
			return nil
		}
		// the publisher's context may end with its request
		deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DeliveryTimeout)
		defer cancel()
		if err := s.Deliver(deliverCtx, rec.Content, dest); err != nil {
			return fmt.Errorf("deliver archived report %s: %w", rec.ID, err)
		}
		return nil
	})
}

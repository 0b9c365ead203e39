package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/config"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

const (
	headerEventType = "Event-Type"
	headerSource    = "Event-Source"

	// natsHandlerTimeout bounds one handler invocation for a received message.
	natsHandlerTimeout = 30 * time.Second
)

// NATSEventBus implements EventBus over a NATS connection. Subjects are namespaced
// with the configured prefix so several deployments can share one server.
type NATSEventBus struct {
	conn   *nats.Conn
	prefix string
	logger *logger.Logger
}

// NewNATSEventBus connects to cfg.URL and keeps reconnecting up to cfg.MaxReconnects.
func NewNATSEventBus(cfg config.NATSConfig, log *logger.Logger) (*NATSEventBus, error) {
	log = log.Component("nats-bus")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("NATS async error", zap.String("subject", subject), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	log.Info("Connected to NATS", zap.String("url", conn.ConnectedUrl()), zap.String("prefix", cfg.SubjectPrefix))
	return &NATSEventBus{
		conn:   conn,
		prefix: strings.Trim(cfg.SubjectPrefix, "."),
		logger: log,
	}, nil
}

func (b *NATSEventBus) qualify(subject string) string {
	if b.prefix == "" {
		return subject
	}
	return b.prefix + "." + subject
}

func (b *NATSEventBus) unqualify(subject string) string {
	if b.prefix == "" {
		return subject
	}
	return strings.TrimPrefix(subject, b.prefix+".")
}

// Publish sends event as JSON with its id as the NATS message id, so JetStream
// streams on the same subjects deduplicate retries.
func (b *NATSEventBus) Publish(_ context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := nats.NewMsg(b.qualify(subject))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID)
	msg.Header.Set(headerEventType, event.Type)
	msg.Header.Set(headerSource, event.Source)

	if err := b.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

// Subscribe registers handler on the prefixed subject pattern.
func (b *NATSEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	sub, err := b.conn.Subscribe(b.qualify(subject), func(msg *nats.Msg) {
		b.dispatch(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	b.logger.Debug("Subscribed to subject", zap.String("subject", subject))
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSEventBus) dispatch(msg *nats.Msg, handler EventHandler) {
	subject := b.unqualify(msg.Subject)

	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		b.logger.Error("Dropping undecodable event",
			zap.String("subject", subject),
			zap.String("event_type", msg.Header.Get(headerEventType)),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), natsHandlerTimeout)
	defer cancel()
	if err := handler(ctx, &event); err != nil {
		b.logger.Error("Event handler failed",
			zap.String("subject", subject),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// Close drains subscriptions so in-flight handlers finish, then closes.
func (b *NATSEventBus) Close() {
	if b.conn == nil || b.conn.IsClosed() {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.logger.Warn("NATS drain failed", zap.Error(err))
		b.conn.Close()
	}
	b.logger.Info("NATS connection closed")
}

func (b *NATSEventBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) IsValid() bool {
	return s.sub.IsValid()
}

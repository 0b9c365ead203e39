package bus

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/logger"
)

// subscriberQueueSize bounds undelivered events per subscriber. A full queue drops
// the event, like a NATS slow consumer.
const subscriberQueueSize = 256

var errBusClosed = errors.New("event bus is closed")

// MemoryEventBus implements EventBus in-process. Each subscription drains its own
// queue on one goroutine, so a subscriber sees events in publish order.
type MemoryEventBus struct {
	mu     sync.RWMutex
	subs   []*memorySubscription
	closed bool
	logger *logger.Logger
}

type delivery struct {
	ctx     context.Context
	subject string
	event   *Event
}

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	tokens  []string
	handler EventHandler
	queue   chan delivery
	once    sync.Once
	done    chan struct{}
}

// NewMemoryEventBus creates an in-memory bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		logger: log.Component("memory-bus"),
	}
}

// Publish queues event for every subscription whose pattern matches subject. It
// never blocks on a slow handler.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return errBusClosed
	}

	tokens := strings.Split(subject, ".")
	detached := context.WithoutCancel(ctx)
	for _, sub := range b.subs {
		if !subjectMatches(sub.tokens, tokens) {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: detached, subject: subject, event: event}:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				zap.String("subject", subject),
				zap.String("subscription", sub.subject))
		}
	}

	b.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type))
	return nil
}

// Subscribe registers handler for a subject pattern with NATS wildcards: "*" matches
// one token and a trailing ">" matches one or more.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBusClosed
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		tokens:  strings.Split(subject, "."),
		handler: handler,
		queue:   make(chan delivery, subscriberQueueSize),
		done:    make(chan struct{}),
	}
	b.subs = append(b.subs, sub)
	go sub.run()

	b.logger.Debug("Subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Close stops every subscription. Queued events are still handed to their handlers.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.stop()
	}
	b.subs = nil

	b.logger.Info("Memory event bus closed")
}

// IsConnected reports true until Close is called.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

func (s *memorySubscription) run() {
	for d := range s.queue {
		if err := s.handler(d.ctx, d.event); err != nil {
			s.bus.logger.Error("Event handler error",
				zap.String("subject", d.subject),
				zap.Error(err))
		}
	}
}

// stop must be called with the bus write lock held so no Publish is mid-send.
func (s *memorySubscription) stop() {
	s.once.Do(func() {
		close(s.done)
		close(s.queue)
	})
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	for i, sub := range s.bus.subs {
		if sub == s {
			s.bus.subs = append(s.bus.subs[:i], s.bus.subs[i+1:]...)
			break
		}
	}
	s.stop()
	return nil
}

func (s *memorySubscription) IsValid() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func subjectMatches(pattern, subject []string) bool {
	for i, p := range pattern {
		if p == ">" {
			return i == len(pattern)-1 && len(subject) > i
		}
		if i >= len(subject) {
			return false
		}
		if p != "*" && p != subject[i] {
			return false
		}
	}
	return len(pattern) == len(subject)
}

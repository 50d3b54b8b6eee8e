package events

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageHandler receives raw MQTT messages.
type MessageHandler func(topic string, payload []byte)

// Broker is the MQTT surface a [Subscriber] needs.
// Implementations must restore subscriptions after a reconnect.
type Broker interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Handler receives translated events.
type Handler func(Event)

// Subscriber delivers call events from a [Broker] to a [Handler].
type Subscriber struct {
	broker Broker
	handle Handler
	logger *slog.Logger
	now    func() time.Time
}

// NewSubscriber creates a [Subscriber]. If logger is nil, [slog.Default] is used.
func NewSubscriber(broker Broker, handle Handler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		broker: broker,
		handle: handle,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe subscribes to [TopicFilter] and returns a handle for teardown.
func (s *Subscriber) Subscribe() (*Subscription, error) {
	if s.broker == nil {
		return nil, errors.New("events: nil broker")
	}
	if err := s.broker.Subscribe(TopicFilter, QoS, s.onMessage); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicFilter, err)
	}
	s.logger.Info("subscribed to GonoPBX MQTT topics", "topic", TopicFilter)
	return &Subscription{broker: s.broker, topic: TopicFilter}, nil
}

func (s *Subscriber) onMessage(topic string, payload []byte) {
	ev, ok := Translate(topic, payload)
	if !ok {
		return
	}
	ev.ReceivedAt = s.now()

	s.logger.Debug("event received", "type", ev.Type)
	if s.handle == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked",
				"correlation_id", uuid.NewString(),
				"event", ev.Type,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.handle(ev)
}

// Subscription is an active topic subscription.
type Subscription struct {
	broker Broker
	topic  string
	once   sync.Once
	err    error
}

// Topic returns the subscribed topic filter.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscription. Later calls return the first
// call's result.
func (s *Subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.broker.Unsubscribe(s.topic)
	})
	return s.err
}

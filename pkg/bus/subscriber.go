package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
)

// ErrDrop marks a delivery that can never succeed; it is logged and acknowledged
// instead of being requeued.
var ErrDrop = errors.New("drop message")

// Drop wraps err so the subscriber acknowledges the delivery without retrying it.
func Drop(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDrop, err)
}

// Delivery is a decoded message handed to handlers.
type Delivery struct {
	MessageID   string
	RoutingKey  string
	Redelivered bool
	PublishedAt time.Time
	Envelope    Envelope
}

// Handler processes one delivery. A nil return acknowledges the message, ErrDrop
// acknowledges and logs it, and any other error requeues it.
type Handler interface {
	Handle(ctx context.Context, d Delivery) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

// QueueSpec names a durable queue and the binding patterns feeding it.
type QueueSpec struct {
	Name     string
	Patterns []string
	// Expires deletes the queue after it has had no consumer for this long.
	// Zero keeps it forever.
	Expires time.Duration
}

func (q QueueSpec) validate() error {
	if strings.TrimSpace(q.Name) == "" {
		return errors.New("queue name required")
	}
	if len(q.Patterns) == 0 {
		return fmt.Errorf("queue %s requires at least one binding pattern", q.Name)
	}
	return nil
}

func (q QueueSpec) arguments() amqp.Table {
	if q.Expires <= 0 {
		return nil
	}
	return amqp.Table{"x-expires": int32(q.Expires / time.Millisecond)}
}

// Subscriber consumes queues with manual acknowledgement.
type Subscriber struct {
	client  *Client
	logg    *logger.Logger
	metrics *metrics.BusMetrics
	backoff time.Duration
}

// NewSubscriber builds a subscriber. backoff is the pause before re-subscribing
// after the broker closes the delivery channel.
func NewSubscriber(client *Client, logg *logger.Logger, m *metrics.BusMetrics, backoff time.Duration) (*Subscriber, error) {
	if client == nil {
		return nil, errors.New("bus client required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Subscriber{client: client, logg: logg, metrics: m, backoff: backoff}, nil
}

// Subscribe declares the queue, binds every pattern and processes deliveries until
// ctx is cancelled. Broker-side channel closures are retried after the backoff.
func (s *Subscriber) Subscribe(ctx context.Context, spec QueueSpec, handler Handler) error {
	if err := spec.validate(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler required")
	}
	logCtx := s.logg.WithField(ctx, "queue", spec.Name)

	for {
		err := s.consume(ctx, spec, handler)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errClientClosed) {
			return err
		}
		s.logg.Error(logCtx, "bus subscription interrupted, retrying", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.backoff):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, spec QueueSpec, handler Handler) error {
	ch, err := s.client.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if s.client.prefetch > 0 {
		if err := ch.Qos(s.client.prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	q, err := ch.QueueDeclare(spec.Name, true, false, false, false, spec.arguments())
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, pattern := range spec.Patterns {
		if err := ch.QueueBind(q.Name, pattern, s.client.Exchange(), false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", pattern, err)
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"queue":    q.Name,
		"patterns": spec.Patterns,
	}), "bus subscription started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed for %s", q.Name)
			}
			s.process(ctx, spec.Name, d, handler)
		}
	}
}

// process runs one delivery through handler and settles it.
func (s *Subscriber) process(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"queue":       queue,
		"message_id":  d.MessageId,
		"routing_key": d.RoutingKey,
	})

	env, err := ParseEnvelope(d.Body)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "dropping malformed bus message")
		s.settle(logCtx, queue, d, metrics.OutcomeDropped)
		return
	}

	delivery := Delivery{
		MessageID:   d.MessageId,
		RoutingKey:  d.RoutingKey,
		Redelivered: d.Redelivered,
		PublishedAt: d.Timestamp,
		Envelope:    env,
	}
	if delivery.MessageID == "" {
		delivery.MessageID = NewMessageID(env.EventType, time.Now())
	}

	err = handler.Handle(logCtx, delivery)
	switch {
	case err == nil:
		s.settle(logCtx, queue, d, metrics.OutcomeAck)
	case errors.Is(err, ErrDrop):
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"event_type": env.EventType,
			"reason":     err.Error(),
		}), "dropping unprocessable bus message")
		s.settle(logCtx, queue, d, metrics.OutcomeDropped)
	default:
		s.logg.Error(s.logg.WithField(logCtx, "event_type", env.EventType), "bus handler failed, requeueing", err)
		s.settle(logCtx, queue, d, metrics.OutcomeNack)
	}
}

func (s *Subscriber) settle(ctx context.Context, queue string, d amqp.Delivery, outcome string) {
	var err error
	if outcome == metrics.OutcomeNack {
		err = d.Nack(false, true)
	} else {
		err = d.Ack(false)
	}
	if err != nil {
		s.logg.Error(ctx, "failed to settle bus message", err)
	}
	s.metrics.ObserveDelivery(queue, outcome)
}

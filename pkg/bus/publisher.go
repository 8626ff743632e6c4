package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
)

const defaultPublishTimeout = 10 * time.Second

// ErrNotConfirmed is returned when the broker negatively acknowledges a publish.
var ErrNotConfirmed = errors.New("broker did not confirm publish")

// Publisher sends envelopes to the exchange on a confirm-mode channel.
type Publisher struct {
	client  *Client
	timeout time.Duration
	metrics *metrics.BusMetrics
	now     func() time.Time

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher builds a publisher bound to the client's exchange.
func NewPublisher(client *Client, timeout time.Duration, m *metrics.BusMetrics) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("bus client required")
	}
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{client: client, timeout: timeout, metrics: m, now: time.Now}, nil
}

// Publish serialises env, marks it persistent and blocks until the broker confirms it.
func (p *Publisher) Publish(ctx context.Context, env Envelope, routingKey string) error {
	return p.PublishWithID(ctx, env, routingKey, "")
}

// PublishWithID is Publish with a caller-chosen message id, so redeliveries of the
// same fact keep the id consumers deduplicate on. An empty id generates a fresh one.
func (p *Publisher) PublishWithID(ctx context.Context, env Envelope, routingKey, messageID string) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if routingKey == "" {
		routingKey = RoutingKey(env.EventType)
	}

	now := p.now()
	if messageID == "" {
		messageID = NewMessageID(env.EventType, now)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         env.EventType,
		Timestamp:    now.UTC(),
		Body:         body,
	}

	err = p.publish(ctx, routingKey, msg)
	p.metrics.ObservePublish(err == nil)
	return err
}

func (p *Publisher) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.confirmChannel()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(pubCtx, p.client.Exchange(), routingKey, false, false, msg)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	acked, err := confirm.WaitContext(pubCtx)
	if err != nil {
		p.resetChannel()
		return fmt.Errorf("await confirm %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotConfirmed, routingKey)
	}
	return nil
}

func (p *Publisher) confirmChannel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.client.channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) resetChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close releases the publishing channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetChannel()
	return nil
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

const exchangeKind = "topic"

var errClientClosed = errors.New("bus client closed")

// Client owns the broker connection and the single shared topic exchange.
type Client struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	exchange string
	prefetch int
	closed   bool
	logg     *logger.Logger
}

// Dial connects to the broker and declares the durable topic exchange. Any failure
// here is fatal to the caller's startup.
func Dial(ctx context.Context, cfg config.BusConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("bus url is required")
	}
	if strings.TrimSpace(cfg.Exchange) == "" {
		return nil, errors.New("bus exchange is required")
	}
	c := &Client{
		url:      cfg.URL,
		exchange: cfg.Exchange,
		prefetch: cfg.Prefetch,
		logg:     logg,
	}
	if _, err := c.connection(); err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "bus connection established")
	}
	return c, nil
}

// Exchange returns the exchange every message is routed through.
func (c *Client) Exchange() string {
	return c.exchange
}

// connection returns the live connection, redialing once when it was dropped.
func (c *Client) connection() (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClientClosed
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(c.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	c.conn = conn
	return conn, nil
}

func (c *Client) channel() (*amqp.Channel, error) {
	conn, err := c.connection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// Ping reports whether the broker connection is usable.
func (c *Client) Ping(context.Context) error {
	_, err := c.connection()
	return err
}

// Close shuts the connection down. Subsequent calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

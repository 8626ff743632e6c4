package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/redis"
)

// Manager tracks processed message IDs per consumer using Redis SETNX with a TTL.
// Keys follow the `hs:idempotency:msg:processed:<consumer>:<message_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks messages as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// CheckAndMarkProcessed returns true if the message has already been processed and
// otherwise marks it as processed with the configured TTL.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, messageID string) (bool, error) {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete forgets a message so a redelivery is processed again.
func (m *Manager) Delete(ctx context.Context, consumer, messageID string) error {
	key, err := m.processedKey(consumer, messageID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Guard skips deliveries the consumer already handled. A failed handler releases
// the mark so the requeued copy runs again. Deliveries without an id pass through.
func (m *Manager) Guard(consumer string, next bus.Handler) bus.Handler {
	return bus.HandlerFunc(func(ctx context.Context, d bus.Delivery) error {
		if strings.TrimSpace(d.MessageID) == "" {
			return next.Handle(ctx, d)
		}
		seen, err := m.CheckAndMarkProcessed(ctx, consumer, d.MessageID)
		if err != nil {
			return fmt.Errorf("idempotency check: %w", err)
		}
		if seen {
			return nil
		}
		if err := next.Handle(ctx, d); err != nil {
			if !errors.Is(err, bus.ErrDrop) {
				if delErr := m.Delete(ctx, consumer, d.MessageID); delErr != nil {
					return errors.Join(err, delErr)
				}
			}
			return err
		}
		return nil
	})
}

func (m *Manager) processedKey(consumer, messageID string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if strings.TrimSpace(messageID) == "" {
		return "", errors.New("message id is required")
	}
	scope := fmt.Sprintf("msg:processed:%s", consumer)
	return m.store.IdempotencyKey(scope, messageID), nil
}

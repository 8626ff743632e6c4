package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const offlineDedupeScope = "offline"

// OfflineQueue keeps pushes for users with no live connection, bounded in length
// and retention.
type OfflineQueue struct {
	store Store
	ttl   time.Duration
	max   int64
}

// NewOfflineQueue builds a queue keeping at most max messages for ttl.
func NewOfflineQueue(store Store, ttl time.Duration, max int64) (*OfflineQueue, error) {
	if store == nil {
		return nil, fmt.Errorf("offline store required")
	}
	if ttl <= 0 || max <= 0 {
		return nil, fmt.Errorf("offline queue ttl and max must be positive")
	}
	return &OfflineQueue{store: store, ttl: ttl, max: max}, nil
}

// Enqueue appends msg for the user. A message id already queued for the same
// user is skipped and reported as false.
func (q *OfflineQueue) Enqueue(ctx context.Context, userID uuid.UUID, msg Message) (bool, error) {
	user := userID.String()
	if msg.ID != "" {
		fresh, err := q.store.SetNX(ctx, q.store.IdempotencyKey(offlineDedupeScope, user+":"+msg.ID), "1", q.ttl)
		if err != nil {
			return false, err
		}
		if !fresh {
			return false, nil
		}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return false, err
	}
	key := q.store.OfflineQueueKey(user)
	if _, err := q.store.RPush(ctx, key, string(payload)); err != nil {
		return false, err
	}
	if err := q.store.LTrim(ctx, key, -q.max, -1); err != nil {
		return true, err
	}
	return true, q.store.Expire(ctx, key, q.ttl)
}

// Drain returns and removes every queued message in arrival order. Entries that
// no longer decode are skipped.
func (q *OfflineQueue) Drain(ctx context.Context, userID uuid.UUID) ([]Message, error) {
	key := q.store.OfflineQueueKey(userID.String())
	raw, err := q.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := q.store.Del(ctx, key); err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		msg, err := decodeMessage([]byte(item))
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Requeue puts messages back at the head of the user's queue, ahead of anything
// enqueued since they were drained. Used when a replay could not be written.
func (q *OfflineQueue) Requeue(ctx context.Context, userID uuid.UUID, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := q.store.OfflineQueueKey(userID.String())
	pending, err := q.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	values := make([]any, 0, len(msgs)+len(pending))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		values = append(values, string(payload))
	}
	for _, item := range pending {
		values = append(values, item)
	}
	if err := q.store.Del(ctx, key); err != nil {
		return err
	}
	if _, err := q.store.RPush(ctx, key, values...); err != nil {
		return err
	}
	if err := q.store.LTrim(ctx, key, -q.max, -1); err != nil {
		return err
	}
	return q.store.Expire(ctx, key, q.ttl)
}

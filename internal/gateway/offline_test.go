package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfflineQueueDedupesPerUser(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	q, err := NewOfflineQueue(store, time.Hour, 10)
	require.NoError(t, err)

	alice, bob := uuid.New(), uuid.New()
	msg := Message{ID: "m1", Type: PushJobTaken}

	queued, err := q.Enqueue(ctx, alice, msg)
	require.NoError(t, err)
	assert.True(t, queued)

	queued, err = q.Enqueue(ctx, alice, msg)
	require.NoError(t, err)
	assert.False(t, queued, "second instance must not queue the same message")

	queued, err = q.Enqueue(ctx, bob, msg)
	require.NoError(t, err)
	assert.True(t, queued)

	assert.Equal(t, 1, store.listLen(store.OfflineQueueKey(alice.String())))
	assert.Equal(t, time.Hour, store.ttls[store.OfflineQueueKey(alice.String())])
}

func TestOfflineQueueKeepsNewestUpToMax(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	q, err := NewOfflineQueue(store, time.Hour, 3)
	require.NoError(t, err)

	user := uuid.New()
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, user, Message{ID: fmt.Sprintf("m%d", i), Type: PushPartnerLocation})
		require.NoError(t, err)
	}

	msgs, err := q.Drain(ctx, user)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[0].ID)
	assert.Equal(t, "m4", msgs[2].ID)

	again, err := q.Drain(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestOfflineQueueRequeuePutsMessagesFirst(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	q, err := NewOfflineQueue(store, time.Hour, 10)
	require.NoError(t, err)

	user := uuid.New()
	_, err = q.Enqueue(ctx, user, Message{ID: "late", Type: PushServiceStarted})
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, user, []Message{{ID: "a", Type: PushJobTaken}, {ID: "b", Type: PushJobTaken}}))

	msgs, err := q.Drain(ctx, user)
	require.NoError(t, err)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "late"}, ids)
}

func TestOfflineQueueSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	q, err := NewOfflineQueue(store, time.Hour, 10)
	require.NoError(t, err)

	user := uuid.New()
	_, err = store.RPush(ctx, store.OfflineQueueKey(user.String()), "{not json")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, user, Message{ID: "ok", Type: PushJobTaken})
	require.NoError(t, err)

	msgs, err := q.Drain(ctx, user)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ok", msgs[0].ID)
}

func TestNewOfflineQueueValidates(t *testing.T) {
	_, err := NewOfflineQueue(nil, time.Hour, 1)
	assert.Error(t, err)
	_, err = NewOfflineQueue(newFakeStore(), 0, 1)
	assert.Error(t, err)
	_, err = NewOfflineQueue(newFakeStore(), time.Hour, 0)
	assert.Error(t, err)
}

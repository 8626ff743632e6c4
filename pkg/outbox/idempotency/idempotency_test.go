package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/homeserve-backend/pkg/bus"
)

type fakeStore struct {
	keys        map[string]bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func newFakeStore() *fakeStore {
	return &fakeStore{keys: map[string]bool{}}
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	if f.setNXError != nil {
		return false, f.setNXError
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hs:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
		f.lastDeleted = key
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)

	already, err := manager.CheckAndMarkProcessed(context.Background(), "booking-service", "booking.created-1-abcd")
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, "hs:idempotency:msg:processed:booking-service:booking.created-1-abcd", store.lastKey)
	assert.Equal(t, 24*time.Hour, store.lastTTL)
}

func TestCheckAndMarkProcessed_AlreadyProcessed(t *testing.T) {
	manager, err := NewManager(newFakeStore(), 12*time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "booking-service", "m1")
	require.NoError(t, err)
	already, err := manager.CheckAndMarkProcessed(context.Background(), "booking-service", "m1")
	require.NoError(t, err)
	assert.True(t, already)
}

func TestCheckAndMarkProcessed_Error(t *testing.T) {
	store := newFakeStore()
	store.setNXError = errors.New("boom")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "booking-service", "m1")
	assert.Error(t, err)
}

func TestCheckAndMarkProcessed_RequiresIDs(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "", "m1")
	assert.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "booking-service", " ")
	assert.Error(t, err)
}

func TestDeleteProcessed(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	require.NoError(t, manager.Delete(context.Background(), "booking-service", "m1"))
	assert.Equal(t, "hs:idempotency:msg:processed:booking-service:m1", store.lastDeleted)
}

func TestGuardSkipsDuplicateDeliveries(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)

	calls := 0
	handler := manager.Guard("partner-service", bus.HandlerFunc(func(context.Context, bus.Delivery) error {
		calls++
		return nil
	}))
	d := bus.Delivery{MessageID: "service.completed-1-abcd"}

	require.NoError(t, handler.Handle(context.Background(), d))
	require.NoError(t, handler.Handle(context.Background(), d))
	assert.Equal(t, 1, calls)
}

func TestGuardReleasesMarkOnFailure(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)

	calls := 0
	handler := manager.Guard("partner-service", bus.HandlerFunc(func(context.Context, bus.Delivery) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}))
	d := bus.Delivery{MessageID: "service.completed-1-abcd"}

	assert.Error(t, handler.Handle(context.Background(), d))
	require.NoError(t, handler.Handle(context.Background(), d))
	assert.Equal(t, 2, calls)
}

func TestGuardKeepsMarkOnDrop(t *testing.T) {
	manager, err := NewManager(newFakeStore(), time.Hour)
	require.NoError(t, err)

	calls := 0
	handler := manager.Guard("partner-service", bus.HandlerFunc(func(context.Context, bus.Delivery) error {
		calls++
		return bus.Drop(errors.New("bad payload"))
	}))
	d := bus.Delivery{MessageID: "m-drop"}

	assert.ErrorIs(t, handler.Handle(context.Background(), d), bus.ErrDrop)
	require.NoError(t, handler.Handle(context.Background(), d))
	assert.Equal(t, 1, calls)
}

package gateway

import (
	"context"
	"time"
)

// Store is the shared-cache surface the gateway needs; *redis.Client satisfies it.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	RPush(ctx context.Context, key string, values ...any) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SCard(ctx context.Context, key string) (int64, error)
	HSet(ctx context.Context, key string, values map[string]any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	IdempotencyKey(scope, id string) string
	PresenceKey(userID string) string
	ConnectionKey(connID string) string
	OfflineQueueKey(userID string) string
	BookingParticipantsKey(bookingID string) string
}

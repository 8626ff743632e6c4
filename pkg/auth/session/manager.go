package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	redisclient "github.com/angelmondragon/homeserve-backend/pkg/redis"
)

const realtimeTokenBytes = 32

var ErrInvalidRealtimeToken = errors.New("invalid realtime token")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	AccessSessionKey(accessID string) string
	RealtimeTicketKey(token string) string
}

// Identity is who a realtime token was issued to.
type Identity struct {
	UserID uuid.UUID        `json:"userId"`
	Role   enums.ClientRole `json:"role"`
}

// Manager checks access sessions and issues the opaque tokens used by the gateway.
type Manager struct {
	store       sessionStore
	keyer       sessionKeyer
	realtimeTTL time.Duration
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// RealtimeTokenResolver is the surface the gateway authenticates sockets with.
type RealtimeTokenResolver interface {
	ResolveRealtimeToken(ctx context.Context, token string) (Identity, error)
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.RealtimeTicketTTL <= 0 {
		return nil, fmt.Errorf("realtime ticket ttl must be positive")
	}
	return &Manager{
		store:       client,
		keyer:       client,
		realtimeTTL: cfg.RealtimeTicketTTL,
	}, nil
}

// HasSession reports whether the provided access ID still has an active session.
func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	if strings.TrimSpace(accessID) == "" {
		return false, fmt.Errorf("access id is required")
	}
	key := m.keyer.AccessSessionKey(accessID)
	if _, err := m.store.Get(ctx, key); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IssueRealtimeToken stores a fresh opaque token for the identity and returns it.
func (m *Manager) IssueRealtimeToken(ctx context.Context, userID uuid.UUID, role enums.ClientRole) (string, time.Time, error) {
	if userID == uuid.Nil {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if !role.IsValid() {
		return "", time.Time{}, fmt.Errorf("invalid client role %q", role)
	}
	token, err := generateToken()
	if err != nil {
		return "", time.Time{}, err
	}
	body, err := json.Marshal(Identity{UserID: userID, Role: role})
	if err != nil {
		return "", time.Time{}, err
	}
	if err := m.store.Set(ctx, m.keyer.RealtimeTicketKey(token), string(body), m.realtimeTTL); err != nil {
		return "", time.Time{}, err
	}
	return token, time.Now().UTC().Add(m.realtimeTTL), nil
}

// ResolveRealtimeToken returns the identity behind token, or ErrInvalidRealtimeToken.
func (m *Manager) ResolveRealtimeToken(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidRealtimeToken
	}
	raw, err := m.store.Get(ctx, m.keyer.RealtimeTicketKey(token))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return Identity{}, ErrInvalidRealtimeToken
		}
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil || id.UserID == uuid.Nil || !id.Role.IsValid() {
		return Identity{}, ErrInvalidRealtimeToken
	}
	return id, nil
}

// RevokeRealtimeToken invalidates token immediately.
func (m *Manager) RevokeRealtimeToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidRealtimeToken
	}
	return m.store.Del(ctx, m.keyer.RealtimeTicketKey(token))
}

func generateToken() (string, error) {
	bytes := make([]byte, realtimeTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating realtime token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Presence publishes which users hold a live socket on any gateway instance.
type Presence struct {
	store    Store
	ttl      time.Duration
	instance string
}

// NewPresence builds a presence index whose entries expire after ttl unless refreshed.
func NewPresence(store Store, ttl time.Duration, instanceID string) (*Presence, error) {
	if store == nil {
		return nil, fmt.Errorf("presence store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("presence ttl must be positive")
	}
	return &Presence{store: store, ttl: ttl, instance: instanceID}, nil
}

func (p *Presence) Add(ctx context.Context, c *Connection) error {
	userKey := p.store.PresenceKey(c.UserID.String())
	connKey := p.store.ConnectionKey(c.ID)
	if err := p.store.SAdd(ctx, userKey, c.ID); err != nil {
		return err
	}
	if err := p.store.HSet(ctx, connKey, map[string]any{
		"user_id":      c.UserID.String(),
		"role":         string(c.Role),
		"instance":     p.instance,
		"connected_at": c.ConnectedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}
	return p.Refresh(ctx, c)
}

// Refresh extends the TTL of the connection's entries.
func (p *Presence) Refresh(ctx context.Context, c *Connection) error {
	return multierr.Combine(
		p.store.Expire(ctx, p.store.PresenceKey(c.UserID.String()), p.ttl),
		p.store.Expire(ctx, p.store.ConnectionKey(c.ID), p.ttl),
	)
}

func (p *Presence) Remove(ctx context.Context, c *Connection) error {
	return multierr.Combine(
		p.store.SRem(ctx, p.store.PresenceKey(c.UserID.String()), c.ID),
		p.store.Del(ctx, p.store.ConnectionKey(c.ID)),
	)
}

// IsOnline reports whether the user has a live connection on any instance.
func (p *Presence) IsOnline(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := p.store.SCard(ctx, p.store.PresenceKey(userID.String()))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

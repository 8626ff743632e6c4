package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const participantsTTL = 72 * time.Hour

// Participants caches who is on each side of an assigned booking so partner
// events can be pushed to the customer without a database lookup.
type Participants struct {
	store Store
}

func NewParticipants(store Store) (*Participants, error) {
	if store == nil {
		return nil, fmt.Errorf("participants store required")
	}
	return &Participants{store: store}, nil
}

func (p *Participants) Remember(ctx context.Context, bookingID, userID, partnerID uuid.UUID) error {
	key := p.store.BookingParticipantsKey(bookingID.String())
	if err := p.store.HSet(ctx, key, map[string]any{
		"user_id":    userID.String(),
		"partner_id": partnerID.String(),
	}); err != nil {
		return err
	}
	return p.store.Expire(ctx, key, participantsTTL)
}

// Lookup returns uuid.Nil for sides that are not cached.
func (p *Participants) Lookup(ctx context.Context, bookingID uuid.UUID) (userID, partnerID uuid.UUID, err error) {
	fields, err := p.store.HGetAll(ctx, p.store.BookingParticipantsKey(bookingID.String()))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	userID, _ = uuid.Parse(fields["user_id"])
	partnerID, _ = uuid.Parse(fields["partner_id"])
	return userID, partnerID, nil
}

func (p *Participants) Forget(ctx context.Context, bookingID uuid.UUID) error {
	return p.store.Del(ctx, p.store.BookingParticipantsKey(bookingID.String()))
}

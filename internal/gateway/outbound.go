package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// BridgePatterns are the routing keys every gateway instance listens to.
var BridgePatterns = []string{"booking.#", "partner.#", "service.#"}

// instanceQueueExpiry removes the queue of a gateway instance that went away.
const instanceQueueExpiry = 30 * time.Minute

// Deliverer pushes a message to every live connection of a user, or queues it.
type Deliverer interface {
	Deliver(ctx context.Context, userID uuid.UUID, msg Message) error
}

type subscriber interface {
	Subscribe(ctx context.Context, spec bus.QueueSpec, handler bus.Handler) error
}

// BridgeParams are the dependencies of NewBridge. Clock defaults to time.Now.
type BridgeParams struct {
	Deliverer    Deliverer
	Participants *Participants
	Subscriber   subscriber
	Idempotency  *idempotency.Manager
	// Queue is this instance's queue; each instance gets every event.
	Queue  string
	Logger *logger.Logger
	Clock  func() time.Time
}

// Bridge turns bus events into client pushes.
type Bridge struct {
	deliver      Deliverer
	participants *Participants
	subscriber   subscriber
	idempotency  *idempotency.Manager
	queue        string
	logg         *logger.Logger
	clock        func() time.Time
}

// NewBridge validates p and builds a Bridge. Call Run to start consuming.
func NewBridge(p BridgeParams) (*Bridge, error) {
	if p.Deliverer == nil {
		return nil, fmt.Errorf("deliverer required")
	}
	if p.Participants == nil {
		return nil, fmt.Errorf("participants cache required")
	}
	if p.Subscriber == nil {
		return nil, fmt.Errorf("bus subscriber required")
	}
	if p.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if p.Queue == "" {
		return nil, fmt.Errorf("queue name required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Bridge{
		deliver:      p.Deliverer,
		participants: p.Participants,
		subscriber:   p.Subscriber,
		idempotency:  p.Idempotency,
		queue:        p.Queue,
		logg:         p.Logger,
		clock:        clock,
	}, nil
}

// Run consumes until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	spec := bus.QueueSpec{Name: b.queue, Patterns: BridgePatterns, Expires: instanceQueueExpiry}
	return b.subscriber.Subscribe(ctx, spec, b.Handler())
}

// Handler dedupes per instance queue so a redelivery never pushes twice.
func (b *Bridge) Handler() bus.Handler {
	return b.idempotency.Guard(b.queue, events.Handler(b.handle))
}

type push struct {
	to   uuid.UUID
	kind string
	data any
}

func (b *Bridge) handle(ctx context.Context, d bus.Delivery, evt events.Event) error {
	ctx = b.logg.WithFields(ctx, map[string]any{
		"message_id": d.MessageID,
		"event_type": string(evt.EventType()),
	})
	pushes, err := b.route(ctx, evt)
	if err != nil {
		return err
	}
	now := b.clock()
	var errs error
	for _, p := range pushes {
		if p.to == uuid.Nil {
			continue
		}
		msg, err := NewMessage(d.MessageID, p.kind, p.data, now)
		if err != nil {
			return bus.Drop(err)
		}
		errs = multierr.Append(errs, b.deliver.Deliver(ctx, p.to, msg))
	}
	if errs != nil {
		b.logg.Error(ctx, "gateway push failed", errs)
	}
	return errs
}

func (b *Bridge) route(ctx context.Context, evt events.Event) ([]push, error) {
	switch e := evt.(type) {
	case events.BookingReadyForAssignment:
		out := make([]push, 0, len(e.SupervisorIDs))
		for _, id := range e.SupervisorIDs {
			out = append(out, push{to: id, kind: PushReadyForAssignment, data: e})
		}
		return out, nil

	case events.JobBroadcast:
		out := make([]push, 0, len(e.PartnerIDs))
		for _, id := range e.PartnerIDs {
			out = append(out, push{to: id, kind: PushNewJobRequest, data: jobRequest{
				BookingID:    e.BookingID,
				Items:        e.Items,
				Address:      e.Address,
				ScheduledAt:  e.ScheduledAt,
				TotalAmount:  e.TotalAmount.StringFixed(2),
				ExpiresAfter: e.ExpiresAfter,
			}})
		}
		return out, nil

	case events.PartnerAssigned:
		if err := b.participants.Remember(ctx, e.BookingID, e.UserID, e.PartnerID); err != nil {
			return nil, err
		}
		return []push{
			{to: e.UserID, kind: PushPartnerAssigned, data: assignedToUser{
				BookingID:   e.BookingID,
				Partner:     e.Partner,
				ScheduledAt: e.ScheduledAt,
				AssignedAt:  e.AssignedAt,
			}},
			{to: e.PartnerID, kind: PushPartnerAssigned, data: assignedToPartner{
				BookingID:   e.BookingID,
				Items:       e.Items,
				User:        e.User,
				ScheduledAt: e.ScheduledAt,
				AssignedAt:  e.AssignedAt,
			}},
		}, nil

	case events.AssignmentRejected:
		return []push{{to: e.PartnerID, kind: PushJobTaken, data: e}}, nil

	case events.BookingPartnerEnroute:
		return []push{{to: e.UserID, kind: PushPartnerEnroute, data: e}}, nil

	case events.PartnerLocationUpdated:
		if e.BookingID == nil {
			return nil, nil
		}
		userID, partnerID, err := b.participants.Lookup(ctx, *e.BookingID)
		if err != nil {
			return nil, err
		}
		// Only the assigned partner's reports reach the booking's user.
		if partnerID == uuid.Nil || partnerID != e.PartnerID {
			b.logg.Debug(b.logg.WithPartnerID(ctx, e.PartnerID.String()), "location from unassigned partner not forwarded")
			return nil, nil
		}
		return []push{{to: userID, kind: PushPartnerLocation, data: e}}, nil

	case events.BookingPartnerArrived:
		return []push{{to: e.PartnerID, kind: PushArrivalConfirmed, data: e}}, nil

	case events.PartnerAvailabilityToggled:
		return []push{{to: e.PartnerID, kind: PushAvailabilityUpdated, data: e}}, nil

	case events.ServiceStarted:
		return []push{
			{to: e.UserID, kind: PushServiceStarted, data: e},
			{to: e.PartnerID, kind: PushServiceStarted, data: e},
		}, nil

	case events.ServiceCompleted:
		if err := b.participants.Forget(ctx, e.BookingID); err != nil {
			b.logg.Warn(ctx, "failed to clear booking participants")
		}
		return []push{
			{to: e.UserID, kind: PushServiceCompleted, data: e},
			{to: e.PartnerID, kind: PushServiceCompleted, data: e},
		}, nil

	case events.BookingCancelled:
		if err := b.participants.Forget(ctx, e.BookingID); err != nil {
			b.logg.Warn(ctx, "failed to clear booking participants")
		}
		out := []push{{to: e.UserID, kind: PushBookingCancelled, data: e}}
		if e.PartnerID != nil {
			out = append(out, push{to: *e.PartnerID, kind: PushBookingCancelled, data: e})
		}
		return out, nil
	}
	return nil, nil
}

type jobRequest struct {
	BookingID    uuid.UUID          `json:"bookingId"`
	Items        types.ServiceItems `json:"items"`
	Address      types.Address      `json:"address"`
	ScheduledAt  time.Time          `json:"scheduledAt"`
	TotalAmount  string             `json:"totalAmount"`
	ExpiresAfter int                `json:"expiresAfterSeconds,omitempty"`
}

type assignedToUser struct {
	BookingID   uuid.UUID             `json:"bookingId"`
	Partner     types.PartnerSnapshot `json:"partner"`
	ScheduledAt time.Time             `json:"scheduledAt"`
	AssignedAt  time.Time             `json:"assignedAt"`
}

type assignedToPartner struct {
	BookingID   uuid.UUID          `json:"bookingId"`
	Items       types.ServiceItems `json:"items"`
	User        types.UserSnapshot `json:"user"`
	ScheduledAt time.Time          `json:"scheduledAt"`
	AssignedAt  time.Time          `json:"assignedAt"`
}

package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
)

const consumerName = "booking-service"

// ConsumerPatterns are the routing keys the booking service reacts to. Client
// requests arrive on partner.*, user.* and hub.*.
var ConsumerPatterns = []string{"partner.#", "user.#", "hub.#", "payment.#"}

type subscriber interface {
	Subscribe(ctx context.Context, spec bus.QueueSpec, handler bus.Handler) error
}

// Consumer applies client requests and payment events to bookings.
type Consumer struct {
	svc         Service
	subscriber  subscriber
	idempotency *idempotency.Manager
	queue       string
	logg        *logger.Logger
}

// NewConsumer builds the booking-service consumer.
func NewConsumer(svc Service, sub subscriber, manager *idempotency.Manager, queue string, logg *logger.Logger) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("booking service required")
	}
	if sub == nil {
		return nil, fmt.Errorf("bus subscriber required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if queue == "" {
		return nil, fmt.Errorf("queue name required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{svc: svc, subscriber: sub, idempotency: manager, queue: queue, logg: logg}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Subscribe(ctx, bus.QueueSpec{Name: c.queue, Patterns: ConsumerPatterns}, c.Handler())
}

// Handler is the deduplicating bus handler; exposed for tests.
func (c *Consumer) Handler() bus.Handler {
	return c.idempotency.Guard(consumerName, events.Handler(c.handle))
}

func (c *Consumer) handle(ctx context.Context, d bus.Delivery, evt events.Event) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": d.MessageID,
		"event_type": string(evt.EventType()),
		"booking_id": evt.BookingKey().String(),
	})

	var err error
	switch e := evt.(type) {
	case events.PartnerAcceptRequested:
		_, err = c.svc.AssignPartner(ctx, AssignInput{
			BookingID:   e.BookingID,
			PartnerID:   e.PartnerID,
			Name:        e.Name,
			Phone:       e.Phone,
			Location:    e.Location,
			RequestedAt: e.RequestedAt,
		})
		if errors.Is(err, ErrAlreadyAssigned) {
			c.logg.Info(logCtx, "late acceptance ignored")
			return nil
		}
	case events.PartnerJobDeclined:
		c.logg.Info(c.logg.WithPartnerID(logCtx, e.PartnerID.String()), "partner declined job")
	case events.JobBroadcastRequested:
		err = c.svc.BroadcastJob(ctx, BroadcastInput{
			BookingID:    e.BookingID,
			Actor:        Actor{UserID: e.RequestedBy, Role: e.Role},
			PartnerIDs:   e.PartnerIDs,
			ExpiresAfter: e.ExpiresAfter,
		})
	case events.PartnerEnrouteRequested:
		err = c.svc.MarkEnroute(ctx, EnrouteInput{
			BookingID:  e.BookingID,
			PartnerID:  e.PartnerID,
			Location:   e.Location,
			EtaMinutes: e.EtaMinutes,
		})
	case events.PartnerLocationUpdated:
		if e.BookingID == nil {
			return nil
		}
		_, err = c.svc.UpdatePartnerLocation(ctx, LocationInput{BookingID: *e.BookingID, PartnerID: e.PartnerID, Location: e.Location})
	case events.ArrivalConfirmRequested:
		err = c.svc.ConfirmArrival(ctx, e.BookingID, e.UserID)
	case events.PaymentConfirmed:
		_, err = c.svc.ConfirmPayment(ctx, PaymentInput{BookingID: e.BookingID, Stage: e.Stage, Amount: e.Amount, Reference: e.Reference})
	case events.PartnerAvailabilityToggled,
		events.BookingCreated,
		events.BookingReadyForAssignment,
		events.JobBroadcast,
		events.BookingPartnerEnroute,
		events.BookingPartnerArrived,
		events.PartnerAssigned,
		events.AssignmentRejected,
		events.BookingCancelled,
		events.ServiceStarted,
		events.ServiceCompleted:
		return nil
	}
	if err != nil {
		c.logg.Error(logCtx, "booking event failed", err)
		return settle(err)
	}
	return nil
}

// settle requeues transient failures and drops the rest.
func settle(err error) error {
	if errors.Is(err, errStale) || pkgerrors.IsRetryable(err) {
		return err
	}
	return bus.Drop(err)
}

package partners

import (
	"context"
	"fmt"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox/idempotency"
)

const consumerName = "partner-service"

// ConsumerPatterns are the routing keys the availability tracker reacts to.
var ConsumerPatterns = []string{"booking.#", "partner.#", "service.#"}

type subscriber interface {
	Subscribe(ctx context.Context, spec bus.QueueSpec, handler bus.Handler) error
}

// Consumer projects booking lifecycle events onto partner availability.
type Consumer struct {
	tracker     Tracker
	subscriber  subscriber
	idempotency *idempotency.Manager
	queue       string
	logg        *logger.Logger
}

// NewConsumer builds the partner-service consumer.
func NewConsumer(tracker Tracker, sub subscriber, manager *idempotency.Manager, queue string, logg *logger.Logger) (*Consumer, error) {
	if tracker == nil {
		return nil, fmt.Errorf("availability tracker required")
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
	return &Consumer{tracker: tracker, subscriber: sub, idempotency: manager, queue: queue, logg: logg}, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscriber.Subscribe(ctx, bus.QueueSpec{Name: c.queue, Patterns: ConsumerPatterns}, c.Handler())
}

// Handler is the deduplicating bus handler.
func (c *Consumer) Handler() bus.Handler {
	return c.idempotency.Guard(consumerName, events.Handler(c.handle))
}

func (c *Consumer) handle(ctx context.Context, d bus.Delivery, evt events.Event) error {
	var err error
	switch e := evt.(type) {
	case events.PartnerAssigned:
		err = c.tracker.OnAssigned(ctx, e.PartnerID, e.BookingID, e.ScheduledAt)
	case events.BookingPartnerEnroute:
		err = c.tracker.OnEnroute(ctx, e.PartnerID, e.BookingID, e.Location)
	case events.BookingPartnerArrived:
		err = c.tracker.OnArrived(ctx, e.PartnerID, e.BookingID)
	case events.ServiceStarted:
		err = c.tracker.OnServiceStarted(ctx, e.PartnerID, e.BookingID)
	case events.ServiceCompleted:
		err = c.tracker.OnServiceCompleted(ctx, e.PartnerID, e.BookingID, e.CompletedAt)
	case events.BookingCancelled:
		if e.PartnerID != nil {
			err = c.tracker.OnBookingCancelled(ctx, *e.PartnerID, e.BookingID)
		}
	case events.PartnerLocationUpdated:
		_, err = c.tracker.UpdateLocation(ctx, e.PartnerID, e.Location)
	case events.PartnerAvailabilityToggled:
		if e.OnBreak {
			_, err = c.tracker.SetBreak(ctx, e.PartnerID, true)
		} else {
			_, err = c.tracker.SetOnline(ctx, e.PartnerID, e.Online)
		}
	case events.BookingCreated,
		events.BookingReadyForAssignment,
		events.JobBroadcast,
		events.AssignmentRejected,
		events.PartnerAcceptRequested,
		events.PartnerJobDeclined,
		events.PartnerEnrouteRequested,
		events.PaymentConfirmed:
		return nil
	}
	if err == nil {
		return nil
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": d.MessageID,
		"event_type": string(evt.EventType()),
	})
	c.logg.Error(logCtx, "availability update failed", err)
	if pkgerrors.IsRetryable(err) {
		return err
	}
	return bus.Drop(err)
}

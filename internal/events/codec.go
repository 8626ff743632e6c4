package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

var (
	// ErrUnknownEventType is returned for envelopes outside the catalogue.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrInvalidPayload is returned when a known event carries an unusable payload.
	ErrInvalidPayload = errors.New("invalid event payload")

	payloadValidator = validator.New()
)

// Decode converts a wire envelope into its typed event.
func Decode(env bus.Envelope) (Event, error) {
	var (
		target Event
		err    error
	)
	switch enums.EventType(env.EventType) {
	case enums.EventBookingCreated:
		target, err = decodeInto[BookingCreated](env.Data)
	case enums.EventBookingReadyForAssignment:
		target, err = decodeInto[BookingReadyForAssignment](env.Data)
	case enums.EventBookingJobBroadcast:
		target, err = decodeInto[JobBroadcast](env.Data)
	case enums.EventJobBroadcastRequested:
		target, err = decodeInto[JobBroadcastRequested](env.Data)
	case enums.EventBookingPartnerAssigned:
		target, err = decodeInto[PartnerAssigned](env.Data)
	case enums.EventBookingAssignmentRejected:
		target, err = decodeInto[AssignmentRejected](env.Data)
	case enums.EventBookingCancelled:
		target, err = decodeInto[BookingCancelled](env.Data)
	case enums.EventPartnerAcceptRequested:
		target, err = decodeInto[PartnerAcceptRequested](env.Data)
	case enums.EventPartnerJobDeclined:
		target, err = decodeInto[PartnerJobDeclined](env.Data)
	case enums.EventPartnerEnrouteRequested:
		target, err = decodeInto[PartnerEnrouteRequested](env.Data)
	case enums.EventBookingPartnerEnroute:
		target, err = decodeInto[BookingPartnerEnroute](env.Data)
	case enums.EventPartnerLocationUpdated:
		target, err = decodeInto[PartnerLocationUpdated](env.Data)
	case enums.EventArrivalConfirmRequested:
		target, err = decodeInto[ArrivalConfirmRequested](env.Data)
	case enums.EventBookingPartnerArrived:
		target, err = decodeInto[BookingPartnerArrived](env.Data)
	case enums.EventPartnerAvailabilityToggle:
		target, err = decodeInto[PartnerAvailabilityToggled](env.Data)
	case enums.EventServiceStarted:
		target, err = decodeInto[ServiceStarted](env.Data)
	case enums.EventServiceCompleted:
		target, err = decodeInto[ServiceCompleted](env.Data)
	case enums.EventPaymentConfirmed:
		target, err = decodeInto[PaymentConfirmed](env.Data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, env.EventType, err)
	}
	return target, nil
}

func decodeInto[T Event](data json.RawMessage) (Event, error) {
	var evt T
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	if err := payloadValidator.Struct(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Envelope builds the wire envelope for evt.
func Envelope(evt Event) (bus.Envelope, error) {
	if evt == nil {
		return bus.Envelope{}, errors.New("event required")
	}
	return bus.NewEnvelope(string(evt.EventType()), evt)
}

// Publisher is the subset of bus.Publisher used to emit typed events.
type Publisher interface {
	Publish(ctx context.Context, env bus.Envelope, routingKey string) error
}

// Publish encodes evt and publishes it under its own routing key.
func Publish(ctx context.Context, pub Publisher, evt Event) error {
	env, err := Envelope(evt)
	if err != nil {
		return err
	}
	return pub.Publish(ctx, env, bus.RoutingKey(env.EventType))
}

// HandlerFunc receives decoded events together with their delivery metadata.
type HandlerFunc func(ctx context.Context, d bus.Delivery, evt Event) error

// Handler adapts fn to a bus.Handler. Envelopes that do not decode are dropped.
func Handler(fn HandlerFunc) bus.Handler {
	return bus.HandlerFunc(func(ctx context.Context, d bus.Delivery) error {
		evt, err := Decode(d.Envelope)
		if err != nil {
			return bus.Drop(err)
		}
		return fn(ctx, d, evt)
	})
}

// Validate checks evt against the same rules Decode applies on receipt.
func Validate(evt Event) error {
	if evt == nil {
		return errors.New("event required")
	}
	if err := payloadValidator.Struct(evt); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, evt.EventType(), err)
	}
	return nil
}

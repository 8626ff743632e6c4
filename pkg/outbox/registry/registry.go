package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/pkg/bus"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox"
)

// EventDescriptor links an event type to the aggregates allowed to emit it and
// the routing key it is published under.
type EventDescriptor struct {
	EventType      enums.EventType
	AggregateTypes []enums.AggregateType
	RoutingKey     string
}

func (d EventDescriptor) allows(aggregate enums.AggregateType) bool {
	for _, candidate := range d.AggregateTypes {
		if candidate == aggregate {
			return true
		}
	}
	return false
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Event      events.Event
	Wire       bus.Envelope
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.EventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry registers every event in the catalogue.
func NewEventRegistry() *EventRegistry {
	reg := &EventRegistry{entries: make(map[enums.EventType]EventDescriptor)}
	bookingOnly := []enums.AggregateType{enums.AggregateBooking}
	partnerOrBooking := []enums.AggregateType{enums.AggregatePartner, enums.AggregateBooking}

	for _, eventType := range enums.EventTypes() {
		aggregates := bookingOnly
		switch eventType {
		case enums.EventPartnerAvailabilityToggle, enums.EventPartnerLocationUpdated:
			aggregates = partnerOrBooking
		case enums.EventBookingCreated:
			aggregates = []enums.AggregateType{enums.AggregateBooking, enums.AggregateRecurringPattern}
		}
		reg.register(EventDescriptor{
			EventType:      eventType,
			AggregateTypes: aggregates,
			RoutingKey:     bus.RoutingKey(string(eventType)),
		})
	}
	return reg
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.RoutingKey == "" {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if !desc.allows(event.AggregateType) {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s cannot emit %s", event.AggregateType, event.EventType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	wire := bus.Envelope{EventType: string(event.EventType), Data: envelope.Data}
	decoded, err := events.Decode(wire)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Event:      decoded,
		Wire:       wire,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

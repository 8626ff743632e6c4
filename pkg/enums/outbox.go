package enums

import "fmt"

// AggregateType maps to the aggregate_type column of outbox rows.
type AggregateType string

const (
	AggregateBooking          AggregateType = "booking"
	AggregatePartner          AggregateType = "partner"
	AggregateRecurringPattern AggregateType = "recurring_pattern"
)

var validAggregateTypes = []AggregateType{
	AggregateBooking,
	AggregatePartner,
	AggregateRecurringPattern,
}

// IsValid reports whether the value matches a known aggregate type.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAggregateType converts raw input into AggregateType.
func ParseAggregateType(value string) (AggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// EventType names a domain fact. The value doubles as the bus routing key.
type EventType string

const (
	EventBookingCreated            EventType = "booking.created"
	EventBookingReadyForAssignment EventType = "booking.ready_for_assignment"
	EventBookingJobBroadcast       EventType = "booking.job.broadcast"
	EventBookingPartnerEnroute     EventType = "booking.partner.enroute"
	EventBookingPartnerArrived     EventType = "booking.partner.arrived"
	EventBookingPartnerAssigned    EventType = "booking.partner.assigned"
	EventBookingAssignmentRejected EventType = "booking.assignment.rejected"
	EventBookingCancelled          EventType = "booking.cancelled"
	EventPartnerAcceptRequested    EventType = "partner.accept.requested"
	EventPartnerJobDeclined        EventType = "partner.job.declined"
	EventPartnerEnrouteRequested   EventType = "partner.enroute.requested"
	EventPartnerLocationUpdated    EventType = "partner.location.updated"
	EventPartnerAvailabilityToggle EventType = "partner.availability.toggled"
	EventServiceStarted            EventType = "service.started"
	EventServiceCompleted          EventType = "service.completed"
	EventPaymentConfirmed          EventType = "payment.confirmed"

	// Requests raised by connected clients. The booking worker turns them
	// into booking.* facts or rejects them.
	EventArrivalConfirmRequested EventType = "user.arrival.requested"
	EventJobBroadcastRequested   EventType = "hub.broadcast.requested"
)

var validEventTypes = []EventType{
	EventBookingCreated,
	EventBookingReadyForAssignment,
	EventBookingJobBroadcast,
	EventBookingPartnerEnroute,
	EventBookingPartnerArrived,
	EventBookingPartnerAssigned,
	EventBookingAssignmentRejected,
	EventBookingCancelled,
	EventPartnerAcceptRequested,
	EventPartnerJobDeclined,
	EventPartnerEnrouteRequested,
	EventPartnerLocationUpdated,
	EventPartnerAvailabilityToggle,
	EventServiceStarted,
	EventServiceCompleted,
	EventPaymentConfirmed,
	EventArrivalConfirmRequested,
	EventJobBroadcastRequested,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known event type.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// EventTypes returns every known event type.
func EventTypes() []EventType {
	out := make([]EventType, len(validEventTypes))
	copy(out, validEventTypes)
	return out
}

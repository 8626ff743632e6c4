// Package events is the closed catalogue of facts exchanged over the bus.
// Every payload implements Event; consumers dispatch with a type switch.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// Event is implemented only by the payload types in this package.
type Event interface {
	EventType() enums.EventType
	// BookingKey returns the booking the fact is about, or uuid.Nil.
	BookingKey() uuid.UUID
	sealed()
}

type BookingCreated struct {
	BookingID    uuid.UUID          `json:"bookingId" validate:"required"`
	UserID       uuid.UUID          `json:"userId" validate:"required"`
	HubID        uuid.UUID          `json:"hubId" validate:"required"`
	ScheduleKind enums.ScheduleKind `json:"scheduleKind"`
	ScheduledAt  time.Time          `json:"scheduledAt"`
	TotalAmount  decimal.Decimal    `json:"totalAmount"`
	PatternID    *uuid.UUID         `json:"recurringPatternId,omitempty"`
}

// BookingReadyForAssignment is addressed to the hub supervisors.
type BookingReadyForAssignment struct {
	BookingID     uuid.UUID          `json:"bookingId" validate:"required"`
	UserID        uuid.UUID          `json:"userId" validate:"required"`
	HubID         uuid.UUID          `json:"hubId" validate:"required"`
	SupervisorIDs []uuid.UUID        `json:"supervisorIds"`
	Items         types.ServiceItems `json:"items"`
	Address       types.Address      `json:"address" validate:"-"`
	ScheduledAt   time.Time          `json:"scheduledAt"`
}

// JobBroadcast offers a booking to candidate partners.
type JobBroadcast struct {
	BookingID    uuid.UUID          `json:"bookingId" validate:"required"`
	HubID        uuid.UUID          `json:"hubId"`
	PartnerIDs   []uuid.UUID        `json:"partnerIds" validate:"required,min=1"`
	BroadcastBy  uuid.UUID          `json:"broadcastBy"`
	Items        types.ServiceItems `json:"items"`
	Address      types.Address      `json:"address" validate:"-"`
	ScheduledAt  time.Time          `json:"scheduledAt"`
	TotalAmount  decimal.Decimal    `json:"totalAmount"`
	BroadcastAt  time.Time          `json:"broadcastAt"`
	ExpiresAfter int                `json:"expiresAfterSeconds,omitempty"`
}

// JobBroadcastRequested asks the booking service to offer a job. The offer
// itself is built from the stored booking.
type JobBroadcastRequested struct {
	BookingID    uuid.UUID        `json:"bookingId" validate:"required"`
	RequestedBy  uuid.UUID        `json:"requestedBy" validate:"required"`
	Role         enums.ClientRole `json:"role" validate:"required"`
	PartnerIDs   []uuid.UUID      `json:"partnerIds" validate:"required,min=1"`
	ExpiresAfter int              `json:"expiresAfterSeconds,omitempty" validate:"gte=0"`
	RequestedAt  time.Time        `json:"requestedAt"`
}

type PartnerAssigned struct {
	BookingID   uuid.UUID             `json:"bookingId" validate:"required"`
	UserID      uuid.UUID             `json:"userId" validate:"required"`
	PartnerID   uuid.UUID             `json:"partnerId" validate:"required"`
	Partner     types.PartnerSnapshot `json:"partner"`
	User        types.UserSnapshot    `json:"user" validate:"-"`
	Items       types.ServiceItems    `json:"items"`
	ScheduledAt time.Time             `json:"scheduledAt"`
	AssignedAt  time.Time             `json:"assignedAt"`
}

// AssignmentRejected tells a late partner that the job was taken.
type AssignmentRejected struct {
	BookingID uuid.UUID `json:"bookingId" validate:"required"`
	PartnerID uuid.UUID `json:"partnerId" validate:"required"`
	Reason    string    `json:"reason"`
}

type BookingCancelled struct {
	BookingID   uuid.UUID  `json:"bookingId" validate:"required"`
	UserID      uuid.UUID  `json:"userId" validate:"required"`
	PartnerID   *uuid.UUID `json:"partnerId,omitempty"`
	CancelledBy string     `json:"cancelledBy"`
	Reason      string     `json:"reason,omitempty"`
	Refunded    bool       `json:"refunded"`
	CancelledAt time.Time  `json:"cancelledAt"`
}

type PartnerAcceptRequested struct {
	BookingID   uuid.UUID           `json:"bookingId" validate:"required"`
	PartnerID   uuid.UUID           `json:"partnerId" validate:"required"`
	Name        string              `json:"name"`
	Phone       string              `json:"phone"`
	Location    *types.LiveLocation `json:"location,omitempty"`
	RequestedAt time.Time           `json:"requestedAt"`
}

type PartnerJobDeclined struct {
	BookingID uuid.UUID `json:"bookingId" validate:"required"`
	PartnerID uuid.UUID `json:"partnerId" validate:"required"`
	Reason    string    `json:"reason,omitempty"`
}

// PartnerEnrouteRequested is a partner's claim to be on the way. The booking
// service decides whether it holds.
type PartnerEnrouteRequested struct {
	BookingID  uuid.UUID           `json:"bookingId" validate:"required"`
	PartnerID  uuid.UUID           `json:"partnerId" validate:"required"`
	Location   *types.LiveLocation `json:"location,omitempty"`
	EtaMinutes int                 `json:"etaMinutes,omitempty"`
}

// BookingPartnerEnroute is written once the booking moved to TRACKING/ENROUTE.
type BookingPartnerEnroute struct {
	BookingID  uuid.UUID           `json:"bookingId" validate:"required"`
	UserID     uuid.UUID           `json:"userId" validate:"required"`
	PartnerID  uuid.UUID           `json:"partnerId" validate:"required"`
	Location   *types.LiveLocation `json:"location,omitempty"`
	EtaMinutes int                 `json:"etaMinutes,omitempty"`
	EnrouteAt  time.Time           `json:"enrouteAt"`
}

// PartnerLocationUpdated may arrive out of order; consumers keep the newest ReportedAt.
type PartnerLocationUpdated struct {
	BookingID *uuid.UUID         `json:"bookingId,omitempty"`
	PartnerID uuid.UUID          `json:"partnerId" validate:"required"`
	Location  types.LiveLocation `json:"location"`
}

// ArrivalConfirmRequested is raised by a user claiming the partner arrived.
type ArrivalConfirmRequested struct {
	BookingID   uuid.UUID `json:"bookingId" validate:"required"`
	UserID      uuid.UUID `json:"userId" validate:"required"`
	RequestedAt time.Time `json:"requestedAt"`
}

// BookingPartnerArrived is written once the booking owner's confirmation held.
type BookingPartnerArrived struct {
	BookingID uuid.UUID `json:"bookingId" validate:"required"`
	UserID    uuid.UUID `json:"userId" validate:"required"`
	PartnerID uuid.UUID `json:"partnerId" validate:"required"`
	ArrivedAt time.Time `json:"arrivedAt"`
}

type PartnerAvailabilityToggled struct {
	PartnerID uuid.UUID `json:"partnerId" validate:"required"`
	Online    bool      `json:"online"`
	OnBreak   bool      `json:"onBreak,omitempty"`
	ToggledAt time.Time `json:"toggledAt"`
}

type ServiceStarted struct {
	BookingID uuid.UUID `json:"bookingId" validate:"required"`
	UserID    uuid.UUID `json:"userId" validate:"required"`
	PartnerID uuid.UUID `json:"partnerId" validate:"required"`
	StartedAt time.Time `json:"startedAt"`
}

type ServiceCompleted struct {
	BookingID     uuid.UUID           `json:"bookingId" validate:"required"`
	UserID        uuid.UUID           `json:"userId" validate:"required"`
	PartnerID     uuid.UUID           `json:"partnerId" validate:"required"`
	CompletedAt   time.Time           `json:"completedAt"`
	ActualMinutes int                 `json:"actualMinutes"`
	ExtraAmount   decimal.Decimal     `json:"extraAmount"`
	TotalAmount   decimal.Decimal     `json:"totalAmount"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
}

// PaymentConfirmed is the opaque signal from the payment collaborator.
type PaymentConfirmed struct {
	BookingID   uuid.UUID          `json:"bookingId" validate:"required"`
	Stage       enums.PaymentStage `json:"stage" validate:"required,oneof=base full"`
	Amount      decimal.Decimal    `json:"amount"`
	Reference   string             `json:"reference,omitempty"`
	ConfirmedAt time.Time          `json:"confirmedAt"`
}

func (BookingCreated) EventType() enums.EventType { return enums.EventBookingCreated }
func (BookingReadyForAssignment) EventType() enums.EventType {
	return enums.EventBookingReadyForAssignment
}
func (JobBroadcast) EventType() enums.EventType            { return enums.EventBookingJobBroadcast }
func (JobBroadcastRequested) EventType() enums.EventType   { return enums.EventJobBroadcastRequested }
func (PartnerAssigned) EventType() enums.EventType         { return enums.EventBookingPartnerAssigned }
func (AssignmentRejected) EventType() enums.EventType      { return enums.EventBookingAssignmentRejected }
func (BookingCancelled) EventType() enums.EventType        { return enums.EventBookingCancelled }
func (PartnerAcceptRequested) EventType() enums.EventType  { return enums.EventPartnerAcceptRequested }
func (PartnerJobDeclined) EventType() enums.EventType      { return enums.EventPartnerJobDeclined }
func (PartnerEnrouteRequested) EventType() enums.EventType { return enums.EventPartnerEnrouteRequested }
func (BookingPartnerEnroute) EventType() enums.EventType   { return enums.EventBookingPartnerEnroute }
func (PartnerLocationUpdated) EventType() enums.EventType  { return enums.EventPartnerLocationUpdated }
func (ArrivalConfirmRequested) EventType() enums.EventType { return enums.EventArrivalConfirmRequested }
func (BookingPartnerArrived) EventType() enums.EventType   { return enums.EventBookingPartnerArrived }
func (PartnerAvailabilityToggled) EventType() enums.EventType {
	return enums.EventPartnerAvailabilityToggle
}
func (ServiceStarted) EventType() enums.EventType   { return enums.EventServiceStarted }
func (ServiceCompleted) EventType() enums.EventType { return enums.EventServiceCompleted }
func (PaymentConfirmed) EventType() enums.EventType { return enums.EventPaymentConfirmed }

func (e BookingCreated) BookingKey() uuid.UUID            { return e.BookingID }
func (e BookingReadyForAssignment) BookingKey() uuid.UUID { return e.BookingID }
func (e JobBroadcast) BookingKey() uuid.UUID              { return e.BookingID }
func (e JobBroadcastRequested) BookingKey() uuid.UUID     { return e.BookingID }
func (e PartnerAssigned) BookingKey() uuid.UUID           { return e.BookingID }
func (e AssignmentRejected) BookingKey() uuid.UUID        { return e.BookingID }
func (e BookingCancelled) BookingKey() uuid.UUID          { return e.BookingID }
func (e PartnerAcceptRequested) BookingKey() uuid.UUID    { return e.BookingID }
func (e PartnerJobDeclined) BookingKey() uuid.UUID        { return e.BookingID }
func (e PartnerEnrouteRequested) BookingKey() uuid.UUID   { return e.BookingID }
func (e BookingPartnerEnroute) BookingKey() uuid.UUID     { return e.BookingID }
func (e PartnerLocationUpdated) BookingKey() uuid.UUID {
	if e.BookingID == nil {
		return uuid.Nil
	}
	return *e.BookingID
}
func (e ArrivalConfirmRequested) BookingKey() uuid.UUID    { return e.BookingID }
func (e BookingPartnerArrived) BookingKey() uuid.UUID      { return e.BookingID }
func (e PartnerAvailabilityToggled) BookingKey() uuid.UUID { return uuid.Nil }
func (e ServiceStarted) BookingKey() uuid.UUID             { return e.BookingID }
func (e ServiceCompleted) BookingKey() uuid.UUID           { return e.BookingID }
func (e PaymentConfirmed) BookingKey() uuid.UUID           { return e.BookingID }

func (BookingCreated) sealed()             {}
func (BookingReadyForAssignment) sealed()  {}
func (JobBroadcast) sealed()               {}
func (JobBroadcastRequested) sealed()      {}
func (PartnerAssigned) sealed()            {}
func (AssignmentRejected) sealed()         {}
func (BookingCancelled) sealed()           {}
func (PartnerAcceptRequested) sealed()     {}
func (PartnerJobDeclined) sealed()         {}
func (PartnerEnrouteRequested) sealed()    {}
func (BookingPartnerEnroute) sealed()      {}
func (PartnerLocationUpdated) sealed()     {}
func (ArrivalConfirmRequested) sealed()    {}
func (BookingPartnerArrived) sealed()      {}
func (PartnerAvailabilityToggled) sealed() {}
func (ServiceStarted) sealed()             {}
func (ServiceCompleted) sealed()           {}
func (PaymentConfirmed) sealed()           {}

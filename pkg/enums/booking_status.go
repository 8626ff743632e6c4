package enums

import "fmt"

// BookingStatus tracks the lifecycle of a booking.
type BookingStatus string

const (
	BookingStatusCreated            BookingStatus = "created"
	BookingStatusReadyForAssignment BookingStatus = "readyForAssignment"
	BookingStatusTracking           BookingStatus = "tracking"
	BookingStatusOngoing            BookingStatus = "ongoing"
	BookingStatusCompleted          BookingStatus = "completed"
	BookingStatusCancelled          BookingStatus = "cancelled"
)

var validBookingStatuses = []BookingStatus{
	BookingStatusCreated,
	BookingStatusReadyForAssignment,
	BookingStatusTracking,
	BookingStatusOngoing,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// String implements fmt.Stringer.
func (s BookingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BookingStatus.
func (s BookingStatus) IsValid() bool {
	for _, candidate := range validBookingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Cancellable reports whether a user may still cancel from this status.
func (s BookingStatus) Cancellable() bool {
	switch s {
	case BookingStatusCreated, BookingStatusReadyForAssignment, BookingStatusTracking:
		return true
	default:
		return false
	}
}

// ParseBookingStatus converts raw input into a BookingStatus.
func ParseBookingStatus(value string) (BookingStatus, error) {
	for _, candidate := range validBookingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid booking status %q", value)
}

package enums

import "fmt"

// AvailabilityStatus is the partner-level presence state.
type AvailabilityStatus string

const (
	AvailabilityOffline  AvailabilityStatus = "OFFLINE"
	AvailabilityIdle     AvailabilityStatus = "IDLE"
	AvailabilityAssigned AvailabilityStatus = "ASSIGNED"
	AvailabilityEnroute  AvailabilityStatus = "ENROUTE"
	AvailabilityArrived  AvailabilityStatus = "ARRIVED"
	AvailabilityBusy     AvailabilityStatus = "BUSY"
	AvailabilityBreak    AvailabilityStatus = "BREAK"
)

var validAvailabilityStatuses = []AvailabilityStatus{
	AvailabilityOffline,
	AvailabilityIdle,
	AvailabilityAssigned,
	AvailabilityEnroute,
	AvailabilityArrived,
	AvailabilityBusy,
	AvailabilityBreak,
}

// String implements fmt.Stringer.
func (s AvailabilityStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known AvailabilityStatus.
func (s AvailabilityStatus) IsValid() bool {
	for _, candidate := range validAvailabilityStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// RequiresBooking reports whether the status is only legal while bound to a booking.
func (s AvailabilityStatus) RequiresBooking() bool {
	switch s {
	case AvailabilityAssigned, AvailabilityEnroute, AvailabilityArrived, AvailabilityBusy:
		return true
	default:
		return false
	}
}

// ParseAvailabilityStatus converts raw input into an AvailabilityStatus.
func ParseAvailabilityStatus(value string) (AvailabilityStatus, error) {
	for _, candidate := range validAvailabilityStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid availability status %q", value)
}

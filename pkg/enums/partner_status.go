package enums

import "fmt"

// PartnerStatus tracks the assigned partner's progress on a booking.
type PartnerStatus string

const (
	PartnerStatusNotAssigned PartnerStatus = "not_assigned"
	PartnerStatusAssigned    PartnerStatus = "assigned"
	PartnerStatusEnroute     PartnerStatus = "enroute"
	PartnerStatusArrived     PartnerStatus = "arrived"
)

// ordered; a partner only ever moves to the next entry.
var validPartnerStatuses = []PartnerStatus{
	PartnerStatusNotAssigned,
	PartnerStatusAssigned,
	PartnerStatusEnroute,
	PartnerStatusArrived,
}

// String implements fmt.Stringer.
func (s PartnerStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PartnerStatus.
func (s PartnerStatus) IsValid() bool {
	return s.rank() >= 0
}

// Next returns the single status that may follow s.
func (s PartnerStatus) Next() (PartnerStatus, bool) {
	idx := s.rank()
	if idx < 0 || idx+1 >= len(validPartnerStatuses) {
		return "", false
	}
	return validPartnerStatuses[idx+1], true
}

// CanAdvanceTo reports whether target is exactly one step after s.
func (s PartnerStatus) CanAdvanceTo(target PartnerStatus) bool {
	next, ok := s.Next()
	return ok && next == target
}

func (s PartnerStatus) rank() int {
	for i, candidate := range validPartnerStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// ParsePartnerStatus converts raw input into a PartnerStatus.
func ParsePartnerStatus(value string) (PartnerStatus, error) {
	for _, candidate := range validPartnerStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid partner status %q", value)
}

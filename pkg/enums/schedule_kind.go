package enums

import "fmt"

// ScheduleKind distinguishes bookings served now from bookings served later.
type ScheduleKind string

const (
	ScheduleKindInstant   ScheduleKind = "instant"
	ScheduleKindScheduled ScheduleKind = "scheduled"
)

// IsValid reports whether the value is a known ScheduleKind.
func (k ScheduleKind) IsValid() bool {
	return k == ScheduleKindInstant || k == ScheduleKindScheduled
}

// ParseScheduleKind converts raw input into a ScheduleKind.
func ParseScheduleKind(value string) (ScheduleKind, error) {
	k := ScheduleKind(value)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid schedule kind %q", value)
	}
	return k, nil
}

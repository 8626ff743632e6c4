package enums

import "fmt"

// RecurrenceCadence defines how often a recurring pattern fires.
type RecurrenceCadence string

const (
	CadenceDaily   RecurrenceCadence = "daily"
	CadenceWeekly  RecurrenceCadence = "weekly"
	CadenceMonthly RecurrenceCadence = "monthly"
)

// IsValid reports whether the value is a known RecurrenceCadence.
func (c RecurrenceCadence) IsValid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	default:
		return false
	}
}

// ParseRecurrenceCadence converts raw input into a RecurrenceCadence.
func ParseRecurrenceCadence(value string) (RecurrenceCadence, error) {
	c := RecurrenceCadence(value)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid recurrence cadence %q", value)
	}
	return c, nil
}

// PatternStatus is the lifecycle of a recurring pattern.
type PatternStatus string

const (
	PatternStatusActive    PatternStatus = "active"
	PatternStatusPaused    PatternStatus = "paused"
	PatternStatusCancelled PatternStatus = "cancelled"
)

// IsValid reports whether the value is a known PatternStatus.
func (s PatternStatus) IsValid() bool {
	switch s {
	case PatternStatusActive, PatternStatusPaused, PatternStatusCancelled:
		return true
	default:
		return false
	}
}

// ParsePatternStatus converts raw input into a PatternStatus.
func ParsePatternStatus(value string) (PatternStatus, error) {
	s := PatternStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid pattern status %q", value)
	}
	return s, nil
}

package recurring

import (
	"time"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

// searchHorizonDays bounds the calendar walk; a monthly pattern on the 31st
// still fires within any window of this length.
const searchHorizonDays = 400

// NextOccurrence returns the first occurrence of the pattern strictly after
// from, never before the start date and never after the end date. It reports
// false when the pattern has no further occurrence.
func NextOccurrence(p models.RecurringPattern, from time.Time) (time.Time, bool) {
	if !p.Cadence.IsValid() || p.TimeOfDayMinutes < 0 || p.TimeOfDayMinutes >= 24*60 {
		return time.Time{}, false
	}
	from = from.UTC()
	if start := p.StartDate.UTC(); from.Before(start) {
		from = start.Add(-time.Nanosecond)
	}
	offset := time.Duration(p.TimeOfDayMinutes) * time.Minute
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	for i := 0; i <= searchHorizonDays; i++ {
		candidate := day.AddDate(0, 0, i).Add(offset)
		if !candidate.After(from) {
			continue
		}
		if p.EndDate != nil && candidate.After(p.EndDate.UTC()) {
			return time.Time{}, false
		}
		if matches(p, candidate) {
			return candidate, true
		}
	}
	return time.Time{}, false
}

func matches(p models.RecurringPattern, at time.Time) bool {
	switch p.Cadence {
	case enums.CadenceDaily:
		return true
	case enums.CadenceWeekly:
		return containsInt(p.Weekdays, int(at.Weekday()))
	case enums.CadenceMonthly:
		return containsInt(p.MonthDays, at.Day())
	}
	return false
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

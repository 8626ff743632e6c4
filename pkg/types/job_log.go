package types

import (
	"database/sql/driver"
	"time"
)

const jobLogDateLayout = "2006-01-02"

// JobLog groups booking ids by calendar day (UTC, YYYY-MM-DD).
type JobLog map[string][]string

// DayKey formats t into the key used by JobLog.
func DayKey(t time.Time) string {
	return t.UTC().Format(jobLogDateLayout)
}

// Append records bookingID under day once. It returns false when already present.
func (j JobLog) Append(day, bookingID string) bool {
	for _, existing := range j[day] {
		if existing == bookingID {
			return false
		}
	}
	j[day] = append(j[day], bookingID)
	return true
}

// Contains reports whether bookingID is recorded under day.
func (j JobLog) Contains(day, bookingID string) bool {
	for _, existing := range j[day] {
		if existing == bookingID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing the loaded value.
func (j JobLog) Clone() JobLog {
	out := make(JobLog, len(j))
	for day, ids := range j {
		out[day] = append([]string(nil), ids...)
	}
	return out
}

// Value marshals the log into JSON.
func (j JobLog) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return jsonValue(map[string][]string(j))
}

// Scan decodes JSON into the log.
func (j *JobLog) Scan(value interface{}) error {
	if value == nil {
		*j = JobLog{}
		return nil
	}
	decoded := make(map[string][]string)
	if err := scanJSON("job log", value, &decoded); err != nil {
		return err
	}
	*j = decoded
	return nil
}

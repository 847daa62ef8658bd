package expiry

import "time"

// Schedule is a kind's fixed daily check time, zone-local. The hour is
// wall-clock in a named zone, not a UTC offset, so the check follows DST.
type Schedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the first occurrence of the schedule strictly after now.
// A non-positive computed lead (boundary or clock skew) pushes the check
// to the next day instead of firing in a tight loop.
func (s Schedule) Next(now time.Time) time.Time {
	local := now.In(s.Location)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), s.Hour, s.Minute, 0, 0, s.Location)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

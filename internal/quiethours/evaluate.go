package quiethours

import "time"

// IsActive reports whether s suppresses notifications at now.
//
// now is evaluated in its own location; callers convert to the user's zone
// first. The weekday checked is the weekday of now, including the early
// morning tail of an overnight window.
func IsActive(s Schedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if !s.Days.Has(now.Weekday()) {
		return false
	}
	m := ClockOf(now).Minutes()
	start, end := s.Start.Minutes(), s.End.Minutes()
	if start > end {
		return m >= start || m < end
	}
	return m >= start && m < end
}

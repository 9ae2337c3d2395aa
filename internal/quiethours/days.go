package quiethours

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DaySet is a set of weekdays, bit i set for time.Weekday(i) (0=Sunday).
type DaySet uint8

const AllDays DaySet = 1<<7 - 1

func Days(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

func (s DaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

func (s DaySet) With(d time.Weekday) DaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s DaySet) Empty() bool { return s&AllDays == 0 }

// Weekdays lists members in ascending order (Sunday first).
func (s DaySet) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Shift rotates every member by n days (wrapping Saturday to Sunday).
func (s DaySet) Shift(n int) DaySet {
	var out DaySet
	for _, d := range s.Weekdays() {
		out = out.With(time.Weekday(((int(d)+n)%7 + 7) % 7))
	}
	return out
}

// CronField renders the set as a cron day-of-week field ("*" for all days).
func (s DaySet) CronField() string {
	if s&AllDays == AllDays {
		return "*"
	}
	parts := make([]string, 0, 7)
	for _, d := range s.Weekdays() {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func (s DaySet) MarshalJSON() ([]byte, error) {
	out := make([]int, 0, 7)
	for _, d := range s.Weekdays() {
		out = append(out, int(d))
	}
	return json.Marshal(out)
}

func (s *DaySet) UnmarshalJSON(b []byte) error {
	var raw []int
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("days must be a list of weekday numbers: %w", err)
	}
	var out DaySet
	for _, d := range raw {
		if d < 0 || d > 6 {
			return fmt.Errorf("weekday %d out of range 0-6", d)
		}
		out = out.With(time.Weekday(d))
	}
	*s = out
	return nil
}

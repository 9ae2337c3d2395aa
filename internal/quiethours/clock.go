package quiethours

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func NewClock(hour, minute int) Clock { return Clock{Hour: hour, Minute: minute} }

// ParseClock parses "HH:MM" (24h). "7:05" is accepted.
func ParseClock(s string) (Clock, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || len(ms) != 2 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	c := Clock{Hour: h, Minute: m}
	if err := c.Validate(); err != nil {
		return Clock{}, err
	}
	return c, nil
}

func (c Clock) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", c.Minute)
	}
	return nil
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ClockOf returns the wall-clock time of t in t's location.
func ClockOf(t time.Time) Clock { return Clock{Hour: t.Hour(), Minute: t.Minute()} }

func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time of day must be a \"HH:MM\" string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

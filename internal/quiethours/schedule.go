package quiethours

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Schedule is the single persisted quiet-hours record.
type Schedule struct {
	Enabled bool
	Start   Clock
	End     Clock
	Days    DaySet
}

// Default is the schedule used when none has been saved yet.
func Default() Schedule {
	return Schedule{
		Enabled: false,
		Start:   Clock{Hour: 22},
		End:     Clock{Hour: 7},
		Days:    AllDays,
	}
}

func (s Schedule) Validate() error {
	var errs []error
	if err := s.Start.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("start: %w", err))
	}
	if err := s.End.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("end: %w", err))
	}
	if s.Days&^AllDays != 0 {
		errs = append(errs, errors.New("days: unknown weekday bits"))
	}
	return errors.Join(errs...)
}

// Overnight reports whether the window crosses midnight.
func (s Schedule) Overnight() bool { return s.Start.Minutes() > s.End.Minutes() }

// Length is the duration of one window. Zero for degenerate windows.
func (s Schedule) Length() time.Duration {
	d := s.End.Minutes() - s.Start.Minutes()
	if d < 0 {
		d += 24 * 60
	}
	return time.Duration(d) * time.Minute
}

func (s Schedule) String() string {
	state := "off"
	if s.Enabled {
		state = "on"
	}
	return fmt.Sprintf("%s %s-%s days=%s", state, s.Start, s.End, s.Days.CronField())
}

type scheduleJSON struct {
	Enabled bool    `json:"enabled"`
	Start   Clock   `json:"start"`
	End     Clock   `json:"end"`
	Days    *DaySet `json:"days,omitempty"`
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	days := s.Days
	return json.Marshal(scheduleJSON{Enabled: s.Enabled, Start: s.Start, End: s.End, Days: &days})
}

// UnmarshalJSON fills omitted fields from Default. An explicit empty days
// list is kept as empty (never active).
func (s *Schedule) UnmarshalJSON(b []byte) error {
	def := Default()
	aux := scheduleJSON{Enabled: def.Enabled, Start: def.Start, End: def.End}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	out := Schedule{Enabled: aux.Enabled, Start: aux.Start, End: aux.End, Days: def.Days}
	if aux.Days != nil {
		out.Days = *aux.Days
	}
	*s = out
	return nil
}

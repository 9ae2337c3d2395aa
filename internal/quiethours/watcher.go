package quiethours

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pushgate/internal/eventbus"
	"pushgate/pkg/logx"
)

// Loader reads the current schedule. storage.ScheduleStore satisfies it.
type Loader interface {
	Load(ctx context.Context) (Schedule, error)
}

// Boundary is the payload of quiethours.started / quiethours.ended events.
type Boundary struct {
	Schedule string    `json:"schedule"`
	At       time.Time `json:"at"`
}

// CronSpecs returns the cron expressions firing where IsActive(s, t) turns
// true (start) and turns false (end). ok is false when s can never be active.
//
// IsActive checks the weekday of t itself, so the early morning tail of an
// overnight window belongs to the day it falls on. Midnight is a boundary
// whenever the previous day's evening state differs from the current day's
// morning state.
func CronSpecs(s Schedule) (start, end []string, ok bool) {
	if !s.Enabled || s.Days.Empty() || s.Start.Minutes() == s.End.Minutes() {
		return nil, nil, false
	}
	start = []string{clockSpec(s.Start, s.Days)}
	if !s.Overnight() {
		return start, []string{clockSpec(s.End, s.Days)}, true
	}
	if s.End.Minutes() > 0 {
		end = append(end, clockSpec(s.End, s.Days))
	}

	evening := s.Days.Shift(1)
	morning := s.Days
	if s.End.Minutes() == 0 {
		morning = 0
	}
	if d := morning &^ evening; !d.Empty() {
		start = append(start, clockSpec(Clock{}, d))
	}
	if d := evening &^ morning; !d.Empty() {
		end = append(end, clockSpec(Clock{}, d))
	}
	return start, end, true
}

func clockSpec(c Clock, days DaySet) string {
	return fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, days.CronField())
}

// Watcher announces quiet-hours boundaries on the bus. It is informational:
// delivery decisions always re-evaluate the stored schedule.
type Watcher struct {
	loader Loader
	bus    eventbus.Bus
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	current Schedule
}

func NewWatcher(loader Loader, bus eventbus.Bus, log logx.Logger, loc *time.Location) *Watcher {
	if bus == nil {
		bus = eventbus.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Watcher{
		loader: loader,
		bus:    bus,
		log:    log.With(logx.String("comp", "quiethours")),
		loc:    loc,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return nil
	}
	return w.restartLocked(ctx)
}

// Reload re-reads the store and re-registers the boundary jobs.
func (w *Watcher) Reload(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c == nil {
		return nil
	}
	return w.restartLocked(ctx)
}

func (w *Watcher) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Current returns the schedule the jobs were built from.
func (w *Watcher) Current() Schedule {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Next returns the next start and end boundary after now. Zero when none.
func (w *Watcher) Next(now time.Time) (start, end time.Time) {
	sSpecs, eSpecs, ok := CronSpecs(w.Current())
	if !ok {
		return time.Time{}, time.Time{}
	}
	now = now.In(w.loc)
	return w.earliest(sSpecs, now), w.earliest(eSpecs, now)
}

func (w *Watcher) earliest(specs []string, now time.Time) time.Time {
	var out time.Time
	for _, spec := range specs {
		sch, err := w.parser.Parse(spec)
		if err != nil {
			continue
		}
		if t := sch.Next(now); out.IsZero() || t.Before(out) {
			out = t
		}
	}
	return out
}

func (w *Watcher) restartLocked(ctx context.Context) error {
	if w.c != nil {
		<-w.c.Stop().Done()
		w.c = nil
	}

	s, err := w.loader.Load(ctx)
	if err != nil {
		// Same fail-open rule as the gate.
		w.log.Debug("schedule unavailable; watching default", logx.Err(err))
		s = Default()
	}
	w.current = s

	c := cron.New(cron.WithParser(w.parser), cron.WithLocation(w.loc))
	sSpecs, eSpecs, _ := CronSpecs(s)
	for _, spec := range sSpecs {
		if _, err := c.AddFunc(spec, func() { w.announce(eventbus.TypeQuietHoursStarted, s) }); err != nil {
			return fmt.Errorf("quiet hours start job %q: %w", spec, err)
		}
	}
	for _, spec := range eSpecs {
		if _, err := c.AddFunc(spec, func() { w.announce(eventbus.TypeQuietHoursEnded, s) }); err != nil {
			return fmt.Errorf("quiet hours end job %q: %w", spec, err)
		}
	}
	c.Start()
	w.c = c
	w.log.Info("quiet hours watcher armed", logx.String("schedule", s.String()), logx.String("tz", w.loc.String()))
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeQuietHoursReloaded, Data: Boundary{Schedule: s.String(), At: time.Now()}})
	return nil
}

func (w *Watcher) announce(typ string, s Schedule) {
	now := time.Now().In(w.loc)
	w.log.Info("quiet hours boundary", logx.String("event", typ), logx.String("schedule", s.String()))
	w.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: Boundary{Schedule: s.String(), At: now}})
}

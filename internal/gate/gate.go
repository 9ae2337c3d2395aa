// Package gate decides whether an inbound push is presented or suppressed by
// quiet hours.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pushgate/internal/eventbus"
	"pushgate/internal/host"
	"pushgate/internal/notification"
	"pushgate/internal/quiethours"
	"pushgate/internal/storage"
	"pushgate/pkg/logx"
)

type Action int

const (
	Present Action = iota
	Suppress
)

func (a Action) String() string {
	if a == Suppress {
		return "suppress"
	}
	return "present"
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

type Decision struct {
	Action       Action                 `json:"action"`
	Notification notification.Canonical `json:"notification"`
	// QuietHours is the schedule the decision was made against.
	QuietHours quiethours.Schedule `json:"quiet_hours"`
}

// VibratePattern and RequireInteraction are fixed presentation hints.
var VibratePattern = []int{200, 100, 200}

const RequireInteraction = true

type Gate struct {
	store     storage.ScheduleStore
	presenter host.Presenter
	bus       eventbus.Bus
	log       logx.Logger
	loc       *time.Location
	now       func() time.Time
}

type Option func(*Gate)

func WithBus(b eventbus.Bus) Option { return func(g *Gate) { g.bus = b } }
func WithLogger(log logx.Logger) Option {
	return func(g *Gate) { g.log = log.With(logx.String("comp", "gate")) }
}

// WithLocation evaluates quiet hours in loc instead of the event's zone.
func WithLocation(loc *time.Location) Option { return func(g *Gate) { g.loc = loc } }

// WithClock overrides the evaluation time source.
func WithClock(now func() time.Time) Option { return func(g *Gate) { g.now = now } }

func New(store storage.ScheduleStore, presenter host.Presenter, opts ...Option) *Gate {
	g := &Gate{
		store:     store,
		presenter: presenter,
		bus:       eventbus.Nop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// schedule reads the stored schedule. Any failure fails open: the returned
// schedule is disabled.
func (g *Gate) schedule(ctx context.Context) quiethours.Schedule {
	if g.store == nil {
		return quiethours.Default()
	}
	s, err := g.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			g.log.Warn("schedule unavailable; delivering", logx.Err(err))
		}
		d := quiethours.Default()
		d.Enabled = false
		return d
	}
	return s
}

// HandlePush normalizes ev, evaluates quiet hours and presents the
// notification unless suppressed. A presenter error other than
// host.ErrUnsupported is returned wrapped; the decision is still Present.
func (g *Gate) HandlePush(ctx context.Context, ev host.PushEvent) (Decision, error) {
	n := notification.Normalize(ev.Body, ev.HasBody)
	s := g.schedule(ctx)

	now := g.now()
	if g.loc != nil {
		now = now.In(g.loc)
	}
	d := Decision{Notification: n, QuietHours: s}
	log := g.log.With(logx.String("push_id", ev.ID), logx.String("tag", n.Tag))

	if quiethours.IsActive(s, now) {
		d.Action = Suppress
		log.Info("push suppressed by quiet hours", logx.String("schedule", s.String()))
		g.bus.Publish(eventbus.Event{Type: eventbus.TypePushSuppressed, Data: d})
		return d, nil
	}

	d.Action = Present
	var err error
	if g.presenter != nil {
		err = g.presenter.Present(ctx, PresentationOf(n))
	}
	switch {
	case err == nil:
		log.Debug("push presented")
	case errors.Is(err, host.ErrUnsupported):
		log.Debug("presentation unsupported by host")
		err = nil
	default:
		err = fmt.Errorf("present %s: %w", n.Tag, err)
		g.bus.Publish(eventbus.Event{Type: eventbus.TypePushFailed, Data: d})
		return d, err
	}
	g.bus.Publish(eventbus.Event{Type: eventbus.TypePushPresented, Data: d})
	return d, nil
}

// PresentationOf hands n to the host verbatim plus the fixed hints.
func PresentationOf(n notification.Canonical) host.Presentation {
	actions := make([]host.Action, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, host.Action{ID: a.ID, Label: a.Label})
	}
	return host.Presentation{
		Title:              n.Title,
		Body:               n.Body,
		Icon:               n.Icon,
		Badge:              n.Badge,
		Tag:                n.Tag,
		Payload:            n.Payload,
		Actions:            actions,
		Vibrate:            append([]int(nil), VibratePattern...),
		RequireInteraction: RequireInteraction,
	}
}

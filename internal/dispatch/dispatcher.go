// Package dispatch is the single background agent of the process. Every
// event type has exactly one handler, registered when the Dispatcher is
// built. Each event gets a host.Lifetime and is not finished until all the
// work it registered has completed.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pushgate/internal/agent"
	"pushgate/internal/gate"
	"pushgate/internal/host"
	"pushgate/internal/interaction"
	"pushgate/internal/notification"
	"pushgate/internal/runtime/supervisor"
	"pushgate/pkg/logx"
)

type EventType string

const (
	EventInstall     EventType = "install"
	EventActivate    EventType = "activate"
	EventPush        EventType = "push"
	EventInteraction EventType = "interaction"
)

var (
	ErrStopped      = errors.New("dispatcher stopped")
	ErrUnknownEvent = errors.New("no handler for event type")
)

// Event is one unit of work delivered by a transport.
type Event struct {
	Type         EventType
	Push         host.PushEvent
	Action       string
	Notification notification.Canonical
}

func PushOf(ev host.PushEvent) Event { return Event{Type: EventPush, Push: ev} }

func InteractionOf(action string, n notification.Canonical) Event {
	return Event{Type: EventInteraction, Action: action, Notification: n}
}

// Outcome is what a handler produced. Only the field matching the event
// type is set.
type Outcome struct {
	Decision *gate.Decision     `json:"decision,omitempty"`
	Effect   interaction.Effect `json:"effect"`
	State    agent.State        `json:"state"`
}

// Handler registers its work on life and fills out from that work.
// out is read only after every WaitUntil function has returned.
type Handler func(ev Event, life *host.Lifetime, out *Outcome)

type PushHandler interface {
	HandlePush(ctx context.Context, ev host.PushEvent) (gate.Decision, error)
}

type InteractionHandler interface {
	OnInteraction(ctx context.Context, action string, n notification.Canonical) (interaction.Effect, error)
}

type Stats struct {
	InFlight  int64            `json:"in_flight"`
	Handled   map[string]int64 `json:"handled"`
	Failed    int64            `json:"failed"`
	AgentIs   string           `json:"agent"`
	Claimed   bool             `json:"claimed"`
	StartedAt time.Time        `json:"started_at"`
}

type Dispatcher struct {
	agent        *agent.Lifecycle
	gate         PushHandler
	router       InteractionHandler
	log          logx.Logger
	eventTimeout time.Duration

	handlers map[EventType]Handler
	sup      *supervisor.Supervisor

	mu     sync.RWMutex
	closed bool

	inFlight  atomic.Int64
	failed    atomic.Int64
	cmu       sync.Mutex
	handled   map[EventType]int64
	startedAt time.Time
}

type Option func(*Dispatcher)

func WithLogger(log logx.Logger) Option {
	return func(d *Dispatcher) { d.log = log.With(logx.String("comp", "dispatch")) }
}

// WithEventTimeout bounds the pending work of one event. 0 disables it.
func WithEventTimeout(t time.Duration) Option { return func(d *Dispatcher) { d.eventTimeout = t } }

func New(parent context.Context, lc *agent.Lifecycle, g PushHandler, r InteractionHandler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		agent:     lc,
		gate:      g,
		router:    r,
		handled:   map[EventType]int64{},
		startedAt: time.Now(),
	}
	for _, o := range opts {
		o(d)
	}
	// Events must outlive the caller's context, so they run under their own
	// supervisor which is only cancelled at the stop deadline.
	d.sup = supervisor.New(context.WithoutCancel(parent), supervisor.WithLogger(d.log))
	d.handlers = map[EventType]Handler{
		EventInstall:     d.onInstall,
		EventActivate:    d.onActivate,
		EventPush:        d.onPush,
		EventInteraction: d.onInteraction,
	}
	return d
}

// Dispatch runs ev to completion and returns its outcome. If ctx ends first
// Dispatch returns ctx.Err() but the event keeps running.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	h, ok := d.handlers[ev.Type]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return Outcome{}, ErrStopped
	}
	d.inFlight.Add(1)
	d.sup.Go("event."+string(ev.Type), func(sctx context.Context) error {
		defer d.inFlight.Add(-1)
		ectx := sctx
		if d.eventTimeout > 0 {
			var cancel context.CancelFunc
			ectx, cancel = context.WithTimeout(sctx, d.eventTimeout)
			defer cancel()
		}
		life := host.NewLifetime(ectx)
		var out Outcome
		h(ev, life, &out)
		err := life.Wait()
		d.count(ev.Type, err)
		done <- result{out: out, err: err}
		return nil
	})
	d.mu.RUnlock()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (d *Dispatcher) count(t EventType, err error) {
	d.cmu.Lock()
	d.handled[t]++
	d.cmu.Unlock()
	if err != nil {
		d.failed.Add(1)
		d.log.Warn("event failed", logx.String("event", string(t)), logx.Err(err))
	}
}

func (d *Dispatcher) Stats() Stats {
	d.cmu.Lock()
	handled := make(map[string]int64, len(d.handled))
	for k, v := range d.handled {
		handled[string(k)] = v
	}
	d.cmu.Unlock()
	return Stats{
		InFlight:  d.inFlight.Load(),
		Handled:   handled,
		Failed:    d.failed.Load(),
		AgentIs:   d.agent.State().String(),
		Claimed:   d.agent.Claimed(),
		StartedAt: d.startedAt,
	}
}

func (d *Dispatcher) Supervisor() *supervisor.Supervisor { return d.sup }

// Stop refuses new events and waits for in-flight ones. At ctx's deadline
// the remaining events are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	err := d.sup.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		d.log.Warn("stop deadline reached; cancelling in-flight events", logx.Int64("in_flight", d.inFlight.Load()))
		d.sup.Cancel()
	}
	return err
}

func (d *Dispatcher) onInstall(_ Event, life *host.Lifetime, out *Outcome) {
	_ = life.WaitUntil(func(ctx context.Context) error {
		err := d.agent.Install(ctx)
		out.State = d.agent.State()
		return err
	})
}

func (d *Dispatcher) onActivate(_ Event, life *host.Lifetime, out *Outcome) {
	_ = life.WaitUntil(func(ctx context.Context) error {
		err := d.agent.Activate(ctx)
		out.State = d.agent.State()
		return err
	})
}

// onPush waits for activation before deciding, so no push is handled while
// sessions are still being claimed.
func (d *Dispatcher) onPush(ev Event, life *host.Lifetime, out *Outcome) {
	_ = life.WaitUntil(func(ctx context.Context) error {
		if err := d.agent.WaitReady(ctx); err != nil {
			return fmt.Errorf("push %s: agent not ready: %w", ev.Push.ID, err)
		}
		dec, err := d.gate.HandlePush(ctx, ev.Push)
		out.Decision = &dec
		out.State = d.agent.State()
		return err
	})
}

func (d *Dispatcher) onInteraction(ev Event, life *host.Lifetime, out *Outcome) {
	_ = life.WaitUntil(func(ctx context.Context) error {
		if err := d.agent.WaitReady(ctx); err != nil {
			return fmt.Errorf("interaction: agent not ready: %w", err)
		}
		eff, err := d.router.OnInteraction(ctx, ev.Action, ev.Notification)
		out.Effect = eff
		out.State = d.agent.State()
		return err
	})
}

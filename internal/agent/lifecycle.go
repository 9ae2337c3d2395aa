// Package agent implements the background agent lifecycle:
// Installing -> Waiting -> Activating -> Active.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pushgate/internal/eventbus"
	"pushgate/pkg/logx"
)

type State int

const (
	Installing State = iota
	Waiting
	Activating
	Active
)

func (s State) String() string {
	switch s {
	case Installing:
		return "installing"
	case Waiting:
		return "waiting"
	case Activating:
		return "activating"
	case Active:
		return "active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var ErrInvalidTransition = errors.New("agent: invalid state transition")

// Claimer takes control of every open client session. host.Clients
// satisfies it.
type Claimer interface {
	Claim(ctx context.Context) error
}

// Transition is published on the bus for every state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Lifecycle owns the agent state. Push handling waits on Ready.
type Lifecycle struct {
	claimer      Claimer
	claimTimeout time.Duration
	bus          eventbus.Bus
	log          logx.Logger

	mu        sync.Mutex
	state     State
	claimed   bool
	claimErr  error
	ready     chan struct{}
	readyOnce sync.Once
}

type Option func(*Lifecycle)

func WithClaimTimeout(d time.Duration) Option { return func(l *Lifecycle) { l.claimTimeout = d } }
func WithBus(b eventbus.Bus) Option          { return func(l *Lifecycle) { l.bus = b } }
func WithLogger(log logx.Logger) Option {
	return func(l *Lifecycle) { l.log = log.With(logx.String("comp", "agent")) }
}

func New(claimer Claimer, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		claimer: claimer,
		bus:     eventbus.Nop(),
		state:   Installing,
		ready:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Claimed reports whether session control was taken during activation.
func (l *Lifecycle) Claimed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimed
}

// ClaimErr is the error from the last claim attempt, if any.
func (l *Lifecycle) ClaimErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.claimErr
}

// Ready is closed once the agent is Active.
func (l *Lifecycle) Ready() <-chan struct{} { return l.ready }

// WaitReady blocks until Active or ctx is done.
func (l *Lifecycle) WaitReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lifecycle) transition(from, to State) error {
	l.mu.Lock()
	if l.state != from {
		cur := l.state
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (current %s)", ErrInvalidTransition, from, to, cur)
	}
	l.state = to
	l.mu.Unlock()

	l.log.Debug("agent state changed", logx.String("from", from.String()), logx.String("to", to.String()))
	l.bus.Publish(eventbus.Event{Type: eventbus.TypeAgentState, Data: Transition{From: from, To: to, At: time.Now()}})
	if to == Active {
		l.readyOnce.Do(func() { close(l.ready) })
	}
	return nil
}

// Install moves Installing -> Waiting and immediately activates, superseding
// any previous agent without waiting for its clients to go away.
func (l *Lifecycle) Install(ctx context.Context) error {
	if err := l.transition(Installing, Waiting); err != nil {
		return err
	}
	l.log.Info("agent installed; skipping wait")
	return l.Activate(ctx)
}

// Activate moves Waiting -> Activating, claims every open session, then
// becomes Active. A failed claim is logged and the agent still becomes
// Active without authority over existing sessions.
func (l *Lifecycle) Activate(ctx context.Context) error {
	if err := l.transition(Waiting, Activating); err != nil {
		return err
	}

	var err error
	if l.claimer != nil {
		cctx := ctx
		if l.claimTimeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, l.claimTimeout)
			defer cancel()
		}
		err = l.claimer.Claim(cctx)
	}

	l.mu.Lock()
	l.claimed = err == nil && l.claimer != nil
	l.claimErr = err
	l.mu.Unlock()
	if err != nil {
		l.log.Warn("claiming client sessions failed; continuing without control", logx.Err(err))
	}

	if err := l.transition(Activating, Active); err != nil {
		return err
	}
	l.log.Info("agent active", logx.Bool("claimed", l.Claimed()))
	return nil
}

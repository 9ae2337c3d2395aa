// Package interaction routes clicks on presented notifications to client
// sessions.
package interaction

import (
	"context"
	"errors"
	"fmt"

	"pushgate/internal/eventbus"
	"pushgate/internal/host"
	"pushgate/internal/notification"
	"pushgate/pkg/logx"
)

type Effect int

const (
	EffectNone Effect = iota
	EffectFocused
	EffectOpened
)

func (e Effect) String() string {
	switch e {
	case EffectFocused:
		return "focused"
	case EffectOpened:
		return "opened"
	default:
		return "none"
	}
}

func (e Effect) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// Result is published on the bus after every interaction.
type Result struct {
	Action  string `json:"action"`
	Tag     string `json:"tag"`
	Effect  Effect `json:"effect"`
	Session string `json:"session,omitempty"`
	URL     string `json:"url,omitempty"`
}

type Router struct {
	presenter host.Presenter
	clients   host.Clients
	bus       eventbus.Bus
	log       logx.Logger
}

type Option func(*Router)

func WithBus(b eventbus.Bus) Option { return func(r *Router) { r.bus = b } }
func WithLogger(log logx.Logger) Option {
	return func(r *Router) { r.log = log.With(logx.String("comp", "interaction")) }
}

func New(presenter host.Presenter, clients host.Clients, opts ...Option) *Router {
	r := &Router{presenter: presenter, clients: clients, bus: eventbus.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnInteraction handles action on n. Exactly one of focus, open or nothing
// happens. "dismiss" only closes; every other action, including the empty
// default click, behaves like "view".
func (r *Router) OnInteraction(ctx context.Context, action string, n notification.Canonical) (Effect, error) {
	res := Result{Action: action, Tag: n.Tag}
	r.close(ctx, n.Tag)

	if action == notification.ActionDismiss {
		r.publish(res)
		return EffectNone, nil
	}

	effect, id, url, err := r.view(ctx, n)
	res.Effect, res.Session, res.URL = effect, id, url
	r.publish(res)
	return effect, err
}

func (r *Router) view(ctx context.Context, n notification.Canonical) (Effect, string, string, error) {
	if r.clients == nil {
		return EffectNone, "", "", nil
	}
	sessions, err := r.clients.Enumerate(ctx, host.ClientFilter{Type: host.SessionWindow, IncludeUncontrolled: true})
	if err != nil && !errors.Is(err, host.ErrUnsupported) {
		return EffectNone, "", "", fmt.Errorf("enumerate sessions: %w", err)
	}
	for _, s := range sessions {
		err := s.Focus(ctx)
		if err == nil {
			r.log.Debug("focused session", logx.String("session", s.ID()), logx.String("tag", n.Tag))
			return EffectFocused, s.ID(), s.URL(), nil
		}
		if !errors.Is(err, host.ErrUnsupported) {
			r.log.Debug("focus failed; trying next session", logx.String("session", s.ID()), logx.Err(err))
		}
	}

	url := n.URL()
	s, err := r.clients.OpenWindow(ctx, url)
	switch {
	case err == nil:
		id := ""
		if s != nil {
			id = s.ID()
		}
		r.log.Debug("opened session", logx.String("url", url), logx.String("tag", n.Tag))
		return EffectOpened, id, url, nil
	case errors.Is(err, host.ErrUnsupported):
		return EffectNone, "", "", nil
	default:
		return EffectNone, "", "", fmt.Errorf("open %s: %w", url, err)
	}
}

func (r *Router) close(ctx context.Context, tag string) {
	if r.presenter == nil || tag == "" {
		return
	}
	if err := r.presenter.Close(ctx, tag); err != nil && !errors.Is(err, host.ErrUnsupported) {
		r.log.Debug("closing notification failed", logx.String("tag", tag), logx.Err(err))
	}
}

func (r *Router) publish(res Result) {
	typ := eventbus.TypeInteractionNone
	switch res.Effect {
	case EffectFocused:
		typ = eventbus.TypeInteractionFocused
	case EffectOpened:
		typ = eventbus.TypeInteractionOpened
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: res})
}

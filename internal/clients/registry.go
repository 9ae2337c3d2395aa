// Package clients keeps the set of live client sessions known to the agent.
// Clients register over the HTTP API; the interaction router enumerates,
// focuses and opens sessions through host.Clients.
package clients

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pushgate/internal/eventbus"
	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

// Info is the externally visible state of a session.
type Info struct {
	ID           string           `json:"id"`
	Type         host.SessionType `json:"type"`
	URL          string           `json:"url"`
	Focusable    bool             `json:"focusable"`
	Controlled   bool             `json:"controlled"`
	Controller   string           `json:"controller,omitempty"`
	RegisteredAt time.Time        `json:"registered_at"`
	FocusedAt    time.Time        `json:"focused_at,omitempty"`
}

// FocusRequest is published as client.focus; OpenRequest as client.open.
// Connected clients act on them.
type FocusRequest struct {
	Session string `json:"session"`
	URL     string `json:"url"`
}

type OpenRequest struct {
	Session string `json:"session"`
	URL     string `json:"url"`
}

type Options struct {
	AllowOpen bool
	BaseURL   string
	// Version labels sessions claimed by this agent.
	Version string
}

// Registry is an in-memory, ordered session table implementing host.Clients.
type Registry struct {
	opts Options
	bus  eventbus.Bus
	log  logx.Logger

	mu    sync.RWMutex
	order []string
	byID  map[string]*Info
}

var _ host.Clients = (*Registry)(nil)

func NewRegistry(opts Options, bus eventbus.Bus, log logx.Logger) *Registry {
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Registry{
		opts: opts,
		bus:  bus,
		log:  log.With(logx.String("comp", "clients")),
		byID: map[string]*Info{},
	}
}

// Register adds a session. New sessions are not controlled until the next
// Claim.
func (r *Registry) Register(typ host.SessionType, rawURL string, focusable bool) Info {
	if typ == "" {
		typ = host.SessionWindow
	}
	info := &Info{
		ID:           uuid.NewString(),
		Type:         typ,
		URL:          r.resolve(rawURL),
		Focusable:    focusable,
		RegisteredAt: time.Now(),
	}
	r.mu.Lock()
	r.order = append(r.order, info.ID)
	r.byID[info.ID] = info
	r.mu.Unlock()
	r.log.Debug("session registered", logx.String("session", info.ID), logx.String("type", string(typ)))
	return *info
}

func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns every session in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

func (r *Registry) Enumerate(ctx context.Context, f host.ClientFilter) ([]host.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]host.Session, 0, len(r.order))
	for _, id := range r.order {
		info := r.byID[id]
		if f.Type != "" && f.Type != host.SessionAll && info.Type != f.Type {
			continue
		}
		if !f.IncludeUncontrolled && !info.Controlled {
			continue
		}
		out = append(out, &session{reg: r, id: info.ID, url: info.URL})
	}
	return out, nil
}

func (r *Registry) OpenWindow(ctx context.Context, rawURL string) (host.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !r.opts.AllowOpen {
		return nil, host.ErrUnsupported
	}
	info := r.Register(host.SessionWindow, rawURL, true)
	r.mu.Lock()
	if cur, ok := r.byID[info.ID]; ok {
		cur.Controlled = true
		cur.Controller = r.opts.Version
	}
	r.mu.Unlock()
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeClientOpen, Data: OpenRequest{Session: info.ID, URL: info.URL}})
	r.log.Info("session opened", logx.String("session", info.ID), logx.String("url", info.URL))
	return &session{reg: r, id: info.ID, url: info.URL}, nil
}

// Claim marks every registered session as controlled by this agent.
func (r *Registry) Claim(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	n := 0
	for _, info := range r.byID {
		if !info.Controlled || info.Controller != r.opts.Version {
			info.Controlled = true
			info.Controller = r.opts.Version
			n++
		}
	}
	r.mu.Unlock()
	r.log.Info("sessions claimed", logx.Int("count", n), logx.String("version", r.opts.Version))
	return nil
}

func (r *Registry) focus(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	info, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("session %s: gone", id)
	}
	if !info.Focusable {
		r.mu.Unlock()
		return host.ErrUnsupported
	}
	info.FocusedAt = time.Now()
	req := FocusRequest{Session: info.ID, URL: info.URL}
	r.mu.Unlock()

	r.bus.Publish(eventbus.Event{Type: eventbus.TypeClientFocus, Data: req})
	return nil
}

// resolve makes relative URLs absolute against BaseURL when one is set.
func (r *Registry) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "/"
	}
	base := strings.TrimSpace(r.opts.BaseURL)
	if base == "" {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return b.ResolveReference(ref).String()
}

type session struct {
	reg *Registry
	id  string
	url string
}

func (s *session) ID() string                      { return s.id }
func (s *session) URL() string                     { return s.url }
func (s *session) Focus(ctx context.Context) error { return s.reg.focus(ctx, s.id) }

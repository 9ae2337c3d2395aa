package interaction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pushgate/internal/host"
	"pushgate/internal/notification"
)

type fakeSession struct {
	id        string
	focusable bool
	focused   int
}

func (s *fakeSession) ID() string  { return s.id }
func (s *fakeSession) URL() string { return "/" + s.id }
func (s *fakeSession) Focus(context.Context) error {
	if !s.focusable {
		return host.ErrUnsupported
	}
	s.focused++
	return nil
}

type fakeClients struct {
	mu        sync.Mutex
	sessions  []*fakeSession
	canOpen   bool
	opened    []string
	enumerate int
	filter    host.ClientFilter
}

func (c *fakeClients) Enumerate(_ context.Context, f host.ClientFilter) ([]host.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enumerate++
	c.filter = f
	out := make([]host.Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (c *fakeClients) OpenWindow(_ context.Context, url string) (host.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.canOpen {
		return nil, host.ErrUnsupported
	}
	c.opened = append(c.opened, url)
	return &fakeSession{id: "new"}, nil
}

func (c *fakeClients) Claim(context.Context) error { return nil }

type closeRecorder struct{ closed []string }

func (p *closeRecorder) Present(context.Context, host.Presentation) error { return nil }
func (p *closeRecorder) Close(_ context.Context, tag string) error {
	p.closed = append(p.closed, tag)
	return nil
}

func withURL(url string) notification.Canonical {
	n := notification.Default()
	n.Tag = "t1"
	if url != "" {
		n.Payload = map[string]any{"url": url}
	}
	return n
}

func TestDismissNeverTouchesSessions(t *testing.T) {
	t.Parallel()
	s := &fakeSession{id: "a", focusable: true}
	c := &fakeClients{sessions: []*fakeSession{s}, canOpen: true}
	p := &closeRecorder{}

	eff, err := New(p, c).OnInteraction(context.Background(), notification.ActionDismiss, withURL("/foo"))
	if err != nil {
		t.Fatal(err)
	}
	if eff != EffectNone {
		t.Fatalf("Effect = %v, want none", eff)
	}
	if s.focused != 0 || len(c.opened) != 0 || c.enumerate != 0 {
		t.Fatalf("dismiss touched sessions: focused=%d opened=%v enumerate=%d", s.focused, c.opened, c.enumerate)
	}
	if len(p.closed) != 1 || p.closed[0] != "t1" {
		t.Fatalf("closed = %v, want [t1]", p.closed)
	}
}

func TestViewFocusesExistingSession(t *testing.T) {
	t.Parallel()
	s := &fakeSession{id: "a", focusable: true}
	c := &fakeClients{sessions: []*fakeSession{s}, canOpen: true}

	eff, err := New(&closeRecorder{}, c).OnInteraction(context.Background(), notification.ActionView, withURL("/foo"))
	if err != nil {
		t.Fatal(err)
	}
	if eff != EffectFocused || s.focused != 1 {
		t.Fatalf("Effect = %v focused=%d, want focused/1", eff, s.focused)
	}
	if len(c.opened) != 0 {
		t.Fatalf("opened = %v, want none", c.opened)
	}
	if !c.filter.IncludeUncontrolled || c.filter.Type != host.SessionWindow {
		t.Fatalf("filter = %+v", c.filter)
	}
}

func TestViewFocusesFirstFocusableInOrder(t *testing.T) {
	t.Parallel()
	a := &fakeSession{id: "a"}
	b := &fakeSession{id: "b", focusable: true}
	d := &fakeSession{id: "d", focusable: true}
	c := &fakeClients{sessions: []*fakeSession{a, b, d}}

	eff, _ := New(nil, c).OnInteraction(context.Background(), "", withURL(""))
	if eff != EffectFocused {
		t.Fatalf("Effect = %v, want focused", eff)
	}
	if b.focused != 1 || d.focused != 0 {
		t.Fatalf("focused b=%d d=%d, want 1/0", b.focused, d.focused)
	}
}

func TestViewOpensWhenNoSession(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "payload url", url: "/foo", want: "/foo"},
		{name: "default root", url: "", want: "/"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &fakeClients{sessions: []*fakeSession{{id: "x"}}, canOpen: true}
			eff, err := New(nil, c).OnInteraction(context.Background(), notification.ActionView, withURL(tt.url))
			if err != nil {
				t.Fatal(err)
			}
			if eff != EffectOpened {
				t.Fatalf("Effect = %v, want opened", eff)
			}
			if len(c.opened) != 1 || c.opened[0] != tt.want {
				t.Fatalf("opened = %v, want [%s]", c.opened, tt.want)
			}
		})
	}
}

func TestViewNoOpWhenHostUnsupported(t *testing.T) {
	t.Parallel()
	c := &fakeClients{}
	eff, err := New(nil, c).OnInteraction(context.Background(), "unknown-action", withURL("/foo"))
	if err != nil || eff != EffectNone {
		t.Fatalf("(%v, %v), want (none, nil)", eff, err)
	}
}

type brokenClients struct{ fakeClients }

func (*brokenClients) Enumerate(context.Context, host.ClientFilter) ([]host.Session, error) {
	return nil, errors.New("ipc failure")
}

func TestEnumerateErrorIsReported(t *testing.T) {
	t.Parallel()
	eff, err := New(nil, &brokenClients{}).OnInteraction(context.Background(), notification.ActionView, withURL("/"))
	if err == nil || eff != EffectNone {
		t.Fatalf("(%v, %v), want (none, error)", eff, err)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pushgate/internal/clients"
	"pushgate/internal/dispatch"
	"pushgate/internal/gate"
	"pushgate/internal/interaction"
	"pushgate/internal/notification"
	"pushgate/internal/quiethours"
	"pushgate/internal/storage"
	"pushgate/pkg/logx"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []dispatch.Event
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev dispatch.Event) (dispatch.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if f.err != nil {
		return dispatch.Outcome{}, f.err
	}
	switch ev.Type {
	case dispatch.EventPush:
		n := notification.Normalize(ev.Push.Body, ev.Push.HasBody)
		return dispatch.Outcome{Decision: &gate.Decision{Action: gate.Present, Notification: n}}, nil
	default:
		return dispatch.Outcome{Effect: interaction.EffectOpened}, nil
	}
}

type fakeWatcher struct{ reloads int }

func (w *fakeWatcher) Reload(context.Context) error { w.reloads++; return nil }
func (w *fakeWatcher) Next(time.Time) (time.Time, time.Time) {
	return time.Time{}, time.Time{}
}

type fixture struct {
	router  http.Handler
	disp    *fakeDispatcher
	store   *storage.Memory
	watcher *fakeWatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{disp: &fakeDispatcher{}, store: storage.NewMemory(), watcher: &fakeWatcher{}}
	f.router = NewRouter(Config{Mode: "test"}, Deps{
		Dispatcher: f.disp,
		Store:      f.store,
		Watcher:    f.watcher,
		Clients:    clients.NewRegistry(clients.Options{AllowOpen: true}, nil, logx.Nop()),
		Location:   time.UTC,
		Status:     func() any { return map[string]string{"agent": "active"} },
	}, logx.Nop())
	return f
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestPushRoute(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		body      []byte
		wantTitle string
		wantBody  bool
	}{
		{name: "json", body: []byte(`{"title":"Hi","body":"there"}`), wantTitle: "Hi", wantBody: true},
		{name: "no body", body: nil, wantTitle: notification.DefaultTitle},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			w := f.do(http.MethodPost, "/api/v1/push", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
			}
			var resp struct {
				ID       string        `json:"id"`
				Decision gate.Decision `json:"decision"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.ID == "" || resp.Decision.Notification.Title != tt.wantTitle {
				t.Fatalf("response = %+v, want id and title %q", resp, tt.wantTitle)
			}
			if got := f.disp.events[0].Push.HasBody; got != tt.wantBody {
				t.Fatalf("HasBody = %v, want %v", got, tt.wantBody)
			}
		})
	}
}

func TestPushTooLarge(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/push", bytes.Repeat([]byte("x"), maxPushBody+1))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
}

func TestDispatchErrorsMapToStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "stopped", err: dispatch.ErrStopped, want: http.StatusServiceUnavailable},
		{name: "failed", err: errors.New("sink down"), want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.disp.err = tt.err
			if w := f.do(http.MethodPost, "/api/v1/push", []byte("hello")); w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestInteractionRoute(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := f.do(http.MethodPost, "/api/v1/interactions", []byte(`{"action":"view","notification":{"title":"x","data":{"url":"/inbox"}}}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	ev := f.disp.events[0]
	if ev.Type != dispatch.EventInteraction || ev.Action != "view" || ev.Notification.URL() != "/inbox" {
		t.Fatalf("event = %+v, want view interaction for /inbox", ev)
	}
	if ev.Notification.Tag != notification.DefaultTag {
		t.Fatalf("Tag = %q, want %q", ev.Notification.Tag, notification.DefaultTag)
	}
}

func TestQuietHoursRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/v1/quiet-hours", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	var got quietHoursResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Schedule != quiethours.Default() {
		t.Fatalf("unsaved schedule = %v, want default", got.Schedule)
	}

	w = f.do(http.MethodPut, "/api/v1/quiet-hours", []byte(`{"enabled":true,"start":"00:00","end":"23:59"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	saved, err := f.store.Load(context.Background())
	if err != nil || !saved.Enabled || saved.Days != quiethours.AllDays {
		t.Fatalf("stored = %v err=%v, want enabled on all days", saved, err)
	}
	if f.watcher.reloads != 1 {
		t.Fatalf("watcher reloads = %d, want 1", f.watcher.reloads)
	}
}

func TestQuietHoursRejectsBadClock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	w := f.do(http.MethodPut, "/api/v1/quiet-hours", []byte(`{"enabled":true,"start":"25:00","end":"07:00"}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if _, err := f.store.Load(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("store Load error = %v, want ErrNotFound", err)
	}
}

func TestClientRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/v1/clients", []byte(`{"type":"window","url":"/inbox"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	var info clients.Info
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !info.Focusable {
		t.Fatal("window session not focusable by default")
	}

	if w := f.do(http.MethodPost, "/api/v1/clients", []byte(`{"type":"tab"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", w.Code)
	}
	if w := f.do(http.MethodDelete, "/api/v1/clients/"+info.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", w.Code)
	}
	if w := f.do(http.MethodDelete, "/api/v1/clients/"+info.ID, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second DELETE status = %d, want 404", w.Code)
	}
}

func TestHealthAndStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, path := range []string{"/health", "/api/v1/status"} {
		if w := f.do(http.MethodGet, path, nil); w.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}

func TestPprofRequiresToken(t *testing.T) {
	t.Parallel()
	router := NewRouter(Config{Mode: "test", Pprof: true, PprofToken: "s3cret"}, Deps{
		Clients: clients.NewRegistry(clients.Options{}, nil, logx.Nop()),
	}, logx.Nop())

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "no token", path: "/debug/pprof/cmdline", want: http.StatusUnauthorized},
		{name: "bad bearer", path: "/debug/pprof/cmdline", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "bearer", path: "/debug/pprof/cmdline", header: "Bearer s3cret", want: http.StatusOK},
		{name: "query", path: "/debug/pprof/cmdline?token=s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, w.Code, tt.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:80":   true,
		"[::1]:9000":     true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"10.0.0.5:8080":  false,
		"garbage":        false,
	}
	for addr, want := range tests {
		if got := IsLoopbackAddr(addr); got != want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

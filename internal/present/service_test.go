package present

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pushgate/internal/eventbus"
	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

type flakySink struct {
	name      string
	mu        sync.Mutex
	failFirst int
	err       error
	calls     int
	dismissed []string
}

func (f *flakySink) Name() string { return f.name }

func (f *flakySink) Show(context.Context, host.Presentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.calls <= f.failFirst {
		return errors.New("transient")
	}
	return nil
}

func (f *flakySink) Dismiss(_ context.Context, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed = append(f.dismissed, tag)
	return nil
}

type showOnly struct{}

func (showOnly) Name() string                                 { return "show-only" }
func (showOnly) Show(context.Context, host.Presentation) error { return nil }

func fastConfig() Config {
	return Config{RatePerSec: 1000, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

func TestPresentWithoutSinksIsUnsupported(t *testing.T) {
	t.Parallel()
	s := New(fastConfig(), logx.Nop(), nil)
	if err := s.Present(context.Background(), host.Presentation{Tag: "a"}); !errors.Is(err, host.ErrUnsupported) {
		t.Fatalf("Present error = %v, want ErrUnsupported", err)
	}
	if err := s.Close(context.Background(), "a"); !errors.Is(err, host.ErrUnsupported) {
		t.Fatalf("Close error = %v, want ErrUnsupported", err)
	}
}

func TestPresentRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	t.Cleanup(unsub)

	sink := &flakySink{name: "flaky", failFirst: 2}
	s := New(fastConfig(), logx.Nop(), bus, sink)
	if err := s.Present(context.Background(), host.Presentation{Tag: "t", Title: "hello"}); err != nil {
		t.Fatalf("Present error: %v", err)
	}
	if sink.calls != 3 {
		t.Fatalf("calls = %d, want 3", sink.calls)
	}

	select {
	case ev := <-ch:
		got := ev.Data.(Event)
		if ev.Type != eventbus.TypePresentSent || got.Attempts != 3 {
			t.Fatalf("event = %s %+v", ev.Type, got)
		}
	case <-time.After(time.Second):
		t.Fatal("no sent event")
	}

	hist := s.Snapshot()
	if len(hist) != 1 || hist[0].Tag != "t" || len(hist[0].Sinks) != 1 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestPresentPartialFailureSucceeds(t *testing.T) {
	t.Parallel()
	bad := &flakySink{name: "bad", err: errors.New("down")}
	good := &flakySink{name: "good"}
	s := New(fastConfig(), logx.Nop(), nil, bad, good)

	if err := s.Present(context.Background(), host.Presentation{Tag: "t"}); err != nil {
		t.Fatalf("Present error: %v", err)
	}
	if bad.calls != 4 {
		t.Fatalf("bad calls = %d, want 4 (1 + 3 retries)", bad.calls)
	}
	sent, failed := s.Counts()
	if sent != 1 || failed != 1 {
		t.Fatalf("Counts = (%d, %d), want (1, 1)", sent, failed)
	}
}

func TestPresentAllFail(t *testing.T) {
	t.Parallel()
	boom := errors.New("down")
	s := New(fastConfig(), logx.Nop(), nil, &flakySink{name: "bad", err: boom})
	err := s.Present(context.Background(), host.Presentation{Tag: "t"})
	if !errors.Is(err, boom) {
		t.Fatalf("Present error = %v, want %v", err, boom)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].Error == "" {
		t.Fatalf("history = %+v", h)
	}
}

func TestUnsupportedSinkIsNotRetried(t *testing.T) {
	t.Parallel()
	sink := &flakySink{name: "nope", err: host.ErrUnsupported}
	s := New(fastConfig(), logx.Nop(), nil, sink)
	_ = s.Present(context.Background(), host.Presentation{})
	if sink.calls != 1 {
		t.Fatalf("calls = %d, want 1", sink.calls)
	}
}

func TestCloseReachesDismissers(t *testing.T) {
	t.Parallel()
	d := &flakySink{name: "d"}
	s := New(fastConfig(), logx.Nop(), nil, showOnly{}, d)
	if err := s.Close(context.Background(), "tag-1"); err != nil {
		t.Fatal(err)
	}
	if len(d.dismissed) != 1 || d.dismissed[0] != "tag-1" {
		t.Fatalf("dismissed = %v", d.dismissed)
	}
}

func TestHistoryIsCapped(t *testing.T) {
	t.Parallel()
	cfg := fastConfig()
	cfg.HistorySize = 3
	s := New(cfg, logx.Nop(), nil, showOnly{})
	for i := 0; i < 5; i++ {
		_ = s.Present(context.Background(), host.Presentation{Tag: string(rune('a' + i))})
	}
	h := s.Snapshot()
	if len(h) != 3 || h[0].Tag != "c" || h[2].Tag != "e" {
		t.Fatalf("history = %+v", h)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("retryDelay(%d) = %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("retryDelay(1) = %v, want within jitter of 100ms", d)
	}
}

package host

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifetimeWaitJoinsErrors(t *testing.T) {
	t.Parallel()
	l := NewLifetime(context.Background())
	errA := errors.New("store down")
	errB := errors.New("sink down")
	release := make(chan struct{})

	for _, err := range []error{errA, nil, errB} {
		err := err
		if e := l.WaitUntil(func(context.Context) error {
			<-release
			return err
		}); e != nil {
			t.Fatalf("WaitUntil error: %v", e)
		}
	}

	waited := make(chan error, 1)
	go func() { waited <- l.Wait() }()
	select {
	case err := <-waited:
		t.Fatalf("Wait returned early with %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	err := <-waited
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Wait error = %v, want both %v and %v", err, errA, errB)
	}
}

func TestLifetimeEndedAfterWait(t *testing.T) {
	t.Parallel()
	l := NewLifetime(context.Background())
	if err := l.Wait(); err != nil {
		t.Fatalf("Wait error = %v, want nil", err)
	}
	ran := false
	err := l.WaitUntil(func(context.Context) error {
		ran = true
		return nil
	})
	if !errors.Is(err, ErrLifetimeEnded) {
		t.Fatalf("WaitUntil error = %v, want %v", err, ErrLifetimeEnded)
	}
	if ran {
		t.Fatal("fn ran after the lifetime ended")
	}
}

func TestLifetimeRecoversPanic(t *testing.T) {
	t.Parallel()
	l := NewLifetime(context.Background())
	_ = l.WaitUntil(func(context.Context) error { panic("sink exploded") })
	if err := l.Wait(); !errors.Is(err, ErrPanic) {
		t.Fatalf("Wait error = %v, want %v", err, ErrPanic)
	}
}

func TestLifetimeContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLifetime(ctx)
	_ = l.WaitUntil(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()
	if err := l.Wait(); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait error = %v, want %v", err, context.Canceled)
	}
}

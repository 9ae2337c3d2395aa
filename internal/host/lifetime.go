package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Lifetime keeps an event alive until all work registered through WaitUntil
// has finished. The dispatcher creates one per event and waits on it before
// the event counts as handled.
type Lifetime struct {
	ctx context.Context

	wg   sync.WaitGroup
	mu   sync.Mutex
	errs []error
	done bool
}

func NewLifetime(ctx context.Context) *Lifetime {
	return &Lifetime{ctx: ctx}
}

func (l *Lifetime) Context() context.Context { return l.ctx }

// ErrLifetimeEnded is returned by WaitUntil after Wait has returned.
var ErrLifetimeEnded = errors.New("event lifetime already ended")

// ErrPanic wraps a panic recovered from a WaitUntil function.
var ErrPanic = errors.New("event work panicked")

// WaitUntil runs fn in its own goroutine and extends the event until it
// returns. A panic in fn is recovered and reported by Wait as ErrPanic.
func (l *Lifetime) WaitUntil(fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return ErrLifetimeEnded
	}
	l.wg.Add(1)
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.record(fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		if err := fn(l.ctx); err != nil {
			l.record(err)
		}
	}()
	return nil
}

// Wait blocks until every pending fn has returned and reports their errors.
// Further WaitUntil calls fail.
func (l *Lifetime) Wait() error {
	l.wg.Wait()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = true
	return errors.Join(l.errs...)
}

func (l *Lifetime) record(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

package present

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pushgate/internal/eventbus"
	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

// Service implements host.Presenter on top of a set of sinks.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	sinks   []Sink

	log logx.Logger
	bus eventbus.Bus

	sent   atomic.Uint64
	failed atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

var _ host.Presenter = (*Service)(nil)

func New(cfg Config, log logx.Logger, bus eventbus.Bus, sinks ...Sink) *Service {
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{log: log.With(logx.String("comp", "present")), bus: bus}
	s.applyLocked(cfg)
	for _, sk := range sinks {
		if sk != nil {
			s.sinks = append(s.sinks, sk)
		}
	}
	return s
}

// Apply swaps rate and retry settings at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 300
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// Burst = rate so a handful of simultaneous pushes are not serialized.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Sinks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk.Name())
	}
	return out
}

// Present shows p on every sink concurrently. It succeeds when at least one
// sink succeeded, and returns host.ErrUnsupported when there are no sinks.
func (s *Service) Present(ctx context.Context, p host.Presentation) error {
	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()
	if len(sinks) == 0 {
		return host.ErrUnsupported
	}

	errs := make([]error, len(sinks))
	var wg sync.WaitGroup
	for i, sk := range sinks {
		wg.Add(1)
		go func(i int, sk Sink) {
			defer wg.Done()
			errs[i] = s.showWithRetry(ctx, sk, p)
		}(i, sk)
	}
	wg.Wait()

	item := HistoryItem{At: time.Now(), Tag: p.Tag, Title: p.Title}
	var failures []error
	for i, err := range errs {
		if err == nil {
			item.Sinks = append(item.Sinks, sinks[i].Name())
			continue
		}
		failures = append(failures, fmt.Errorf("%s: %w", sinks[i].Name(), err))
	}
	if len(item.Sinks) > 0 {
		s.appendHistory(item)
		return nil
	}
	err := errors.Join(failures...)
	item.Error = err.Error()
	s.appendHistory(item)
	return err
}

// Close dismisses tag on every sink that supports it.
func (s *Service) Close(ctx context.Context, tag string) error {
	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	var errs []error
	supported := false
	for _, sk := range sinks {
		d, ok := sk.(Dismisser)
		if !ok {
			continue
		}
		supported = true
		if err := d.Dismiss(ctx, tag); err != nil && !errors.Is(err, host.ErrUnsupported) {
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
		}
	}
	if !supported {
		return host.ErrUnsupported
	}
	return errors.Join(errs...)
}

func (s *Service) showWithRetry(ctx context.Context, sk Sink, p host.Presentation) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	attempt := 1
	for ; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			s.publish(eventbus.TypePresentDropped, sk, p.Tag, attempt, err)
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sk.Show(callCtx, p)
		cancel()
		if err == nil {
			s.sent.Add(1)
			s.publish(eventbus.TypePresentSent, sk, p.Tag, attempt, nil)
			return nil
		}
		lastErr = err
		// Unsupported is permanent; retrying will not help.
		if errors.Is(err, host.ErrUnsupported) {
			break
		}
		s.log.Debug("present send failed", logx.String("sink", sk.Name()), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))
		if attempt >= maxAttempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	s.failed.Add(1)
	s.publish(eventbus.TypePresentFailed, sk, p.Tag, attempt, lastErr)
	s.log.Warn("present failed", logx.String("sink", sk.Name()), logx.String("tag", p.Tag), logx.Err(lastErr))
	return lastErr
}

func (s *Service) publish(typ string, sk Sink, tag string, attempts int, err error) {
	now := time.Now()
	ev := Event{Sink: sk.Name(), Tag: tag, Attempts: attempts, At: now}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: ev})
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// Counts returns (sent, failed) sink deliveries since start.
func (s *Service) Counts() (uint64, uint64) { return s.sent.Load(), s.failed.Load() }

func (s *Service) appendHistory(item HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), capped,
// with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

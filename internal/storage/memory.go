package storage

import (
	"context"
	"sync"

	"pushgate/internal/quiethours"
)

// Memory keeps the schedule in process memory. It is lost on restart.
type Memory struct {
	mu  sync.RWMutex
	s   quiethours.Schedule
	set bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Driver() string { return "memory" }

func (m *Memory) Load(ctx context.Context) (quiethours.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return quiethours.Schedule{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.set {
		return quiethours.Schedule{}, ErrNotFound
	}
	return m.s, nil
}

func (m *Memory) Save(ctx context.Context, s quiethours.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.s, m.set = s, true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pushgate/internal/quiethours"
)

var (
	// ErrNotFound means no schedule has been saved yet.
	ErrNotFound = errors.New("schedule not found")
	ErrClosed   = errors.New("store closed")
)

const DefaultKey = "quiet-hours"

// Config selects and configures a backend.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Key         string
	BusyTimeout time.Duration // sqlite only; 0 means default

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func (c Config) key() string {
	if c.Key == "" {
		return DefaultKey
	}
	return c.Key
}

// ScheduleStore is the narrow read/write port the gate and the
// configuration flow use.
type ScheduleStore interface {
	Load(ctx context.Context) (quiethours.Schedule, error)
	Save(ctx context.Context, s quiethours.Schedule) error
}

// Store is a ScheduleStore owning resources.
type Store interface {
	ScheduleStore
	Driver() string
	Close() error
}

// record is the persisted form shared by every backend.
type record struct {
	Schedule  quiethours.Schedule `json:"schedule"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func encodeRecord(s quiethours.Schedule) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	return json.Marshal(record{Schedule: s, UpdatedAt: time.Now().UTC()})
}

func decodeRecord(b []byte) (quiethours.Schedule, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return quiethours.Schedule{}, fmt.Errorf("decode schedule record: %w", err)
	}
	return r.Schedule, nil
}

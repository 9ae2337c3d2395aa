package present

import (
	"context"
	"time"

	"pushgate/internal/host"
)

// Config controls the presentation pipeline.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	HistorySize   int
	// SendTimeout bounds a single sink call.
	SendTimeout time.Duration
}

// Sink shows a presentation on one channel.
type Sink interface {
	Name() string
	Show(ctx context.Context, p host.Presentation) error
}

// Dismisser is implemented by sinks that can remove a shown notification.
type Dismisser interface {
	Dismiss(ctx context.Context, tag string) error
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	Tag   string    `json:"tag"`
	Title string    `json:"title"`
	Sinks []string  `json:"sinks"`
	Error string    `json:"error,omitempty"`
}

// Event is the bus payload for present.sent / present.failed / present.dropped.
type Event struct {
	Sink     string    `json:"sink"`
	Tag      string    `json:"tag"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
	Error    string    `json:"error,omitempty"`
}

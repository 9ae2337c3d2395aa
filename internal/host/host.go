// Package host defines the facilities the dispatch agent needs from its
// environment: presenting notifications and managing client sessions.
//
// Adapters live elsewhere (internal/present, internal/clients and the
// transports); this package only holds the ports and the event types.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupported is returned when the host cannot perform an operation
// (no presentation sink, a session that cannot be focused, opening disabled).
var ErrUnsupported = errors.New("host: operation not supported")

// PushEvent is an inbound push. HasBody distinguishes "no body" from an
// empty body.
type PushEvent struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body,omitempty"`
	HasBody    bool      `json:"has_body"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewPushEvent stamps a push with a fresh id and the current time.
func NewPushEvent(source string, body []byte, hasBody bool) PushEvent {
	return PushEvent{
		ID:         uuid.NewString(),
		Body:       body,
		HasBody:    hasBody,
		Source:     source,
		ReceivedAt: time.Now(),
	}
}

type Action struct {
	ID    string `json:"action"`
	Label string `json:"title"`
}

// Presentation is everything handed to the presentation facility.
type Presentation struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Icon               string         `json:"icon"`
	Badge              string         `json:"badge"`
	Tag                string         `json:"tag"`
	Payload            map[string]any `json:"data"`
	Actions            []Action       `json:"actions"`
	Vibrate            []int          `json:"vibrate"`
	RequireInteraction bool           `json:"requireInteraction"`
}

type Presenter interface {
	Present(ctx context.Context, p Presentation) error
	// Close removes a presented notification by tag.
	Close(ctx context.Context, tag string) error
}

type SessionType string

const (
	SessionWindow SessionType = "window"
	SessionWorker SessionType = "worker"
	SessionAll    SessionType = "all"
)

// ClientFilter narrows Enumerate. IncludeUncontrolled also returns sessions
// not yet claimed by this agent.
type ClientFilter struct {
	Type                SessionType
	IncludeUncontrolled bool
}

type Session interface {
	ID() string
	URL() string
	// Focus brings the session to the foreground. ErrUnsupported when it
	// cannot be focused.
	Focus(ctx context.Context) error
}

type Clients interface {
	// Enumerate returns sessions in a stable host order.
	Enumerate(ctx context.Context, f ClientFilter) ([]Session, error)
	OpenWindow(ctx context.Context, url string) (Session, error)
	// Claim takes control of every open session.
	Claim(ctx context.Context) error
}

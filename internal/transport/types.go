// Package transport holds what the inbound transports (HTTP, AMQP,
// Telegram callbacks) share: the port they feed events into.
package transport

import (
	"context"

	"pushgate/internal/dispatch"
)

// Dispatcher runs one event to completion. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev dispatch.Event) (dispatch.Outcome, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, ev dispatch.Event) (dispatch.Outcome, error)

func (f DispatchFunc) Dispatch(ctx context.Context, ev dispatch.Event) (dispatch.Outcome, error) {
	return f(ctx, ev)
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

package amqp

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"pushgate/internal/dispatch"
	"pushgate/internal/transport"
	"pushgate/pkg/logx"
)

type settle struct {
	acked, nacked, requeued bool
}

func (s *settle) Ack(uint64, bool) error { s.acked = true; return nil }
func (s *settle) Nack(_ uint64, _ bool, requeue bool) error {
	s.nacked, s.requeued = true, requeue
	return nil
}
func (s *settle) Reject(_ uint64, requeue bool) error { return s.Nack(0, false, requeue) }

func TestHandleSettlesDelivery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name                    string
		err                     error
		acked, nacked, requeued bool
	}{
		{name: "ok", acked: true},
		{name: "dispatch error", err: errors.New("sink down"), nacked: true},
		{name: "stopping", err: dispatch.ErrStopped, nacked: true, requeued: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewConsumer(Config{Queue: "q"}, transport.DispatchFunc(func(context.Context, dispatch.Event) (dispatch.Outcome, error) {
				return dispatch.Outcome{}, tt.err
			}), logx.Nop())
			s := &settle{}
			c.Handle(context.Background(), amqp.Delivery{Acknowledger: s, DeliveryTag: 1, Body: []byte("hi")})
			if s.acked != tt.acked || s.nacked != tt.nacked || s.requeued != tt.requeued {
				t.Fatalf("settle = %+v, want acked=%v nacked=%v requeued=%v", *s, tt.acked, tt.nacked, tt.requeued)
			}
		})
	}
}

func TestHandleBuildsPushEvent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		d          amqp.Delivery
		wantBody   bool
		wantSource string
	}{
		{name: "empty body is no body", d: amqp.Delivery{}, wantSource: "amqp"},
		{name: "text body", d: amqp.Delivery{Body: []byte("plain")}, wantBody: true, wantSource: "amqp"},
		{name: "source header", d: amqp.Delivery{Body: []byte("{}"), Headers: amqp.Table{"source": "billing"}}, wantBody: true, wantSource: "billing"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got dispatch.Event
			c := NewConsumer(Config{}, transport.DispatchFunc(func(_ context.Context, ev dispatch.Event) (dispatch.Outcome, error) {
				got = ev
				return dispatch.Outcome{}, nil
			}), logx.Nop())
			tt.d.Acknowledger = &settle{}
			c.Handle(context.Background(), tt.d)
			if got.Type != dispatch.EventPush || got.Push.HasBody != tt.wantBody || got.Push.Source != tt.wantSource {
				t.Fatalf("event = %+v, want push hasBody=%v source=%q", got, tt.wantBody, tt.wantSource)
			}
		})
	}
}

package fcm

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

type recordingSender struct {
	got *messaging.Message
	err error
}

func (r *recordingSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	r.got = m
	return "projects/p/messages/1", r.err
}

func presentation() host.Presentation {
	return host.Presentation{
		Title:              "Order shipped",
		Body:               "Arrives Tuesday",
		Icon:               "/icons/icon-192x192.png",
		Badge:              "/icons/badge-72x72.png",
		Tag:                "order-7",
		Payload:            map[string]any{"url": "https://shop.example/orders/7", "id": 7},
		Actions:            []host.Action{{ID: "view", Label: "Voir"}, {ID: "dismiss", Label: "Fermer"}},
		Vibrate:            []int{200, 100, 200},
		RequireInteraction: true,
	}
}

func TestMessageCarriesPresentation(t *testing.T) {
	t.Parallel()
	m := Message("tok", presentation())
	if m.Token != "tok" {
		t.Fatalf("Token = %q, want tok", m.Token)
	}
	n := m.Webpush.Notification
	if n.Title != "Order shipped" || n.Tag != "order-7" || !n.RequireInteraction {
		t.Fatalf("notification = %+v, want title/tag/requireInteraction", n)
	}
	if !reflect.DeepEqual(n.Vibrate, []int{200, 100, 200}) {
		t.Fatalf("Vibrate = %v, want [200 100 200]", n.Vibrate)
	}
	if len(n.Actions) != 2 || n.Actions[0].Action != "view" || n.Actions[1].Title != "Fermer" {
		t.Fatalf("Actions = %+v, want view/dismiss", n.Actions)
	}
	if got := m.Webpush.Data["id"]; got != "7" {
		t.Fatalf("Data[id] = %q, want \"7\"", got)
	}
	if m.Webpush.FCMOptions == nil || m.Webpush.FCMOptions.Link != "https://shop.example/orders/7" {
		t.Fatalf("FCMOptions = %+v, want https link", m.Webpush.FCMOptions)
	}
}

func TestMessageSkipsRelativeLink(t *testing.T) {
	t.Parallel()
	p := presentation()
	p.Payload = map[string]any{"url": "/inbox"}
	if m := Message("tok", p); m.Webpush.FCMOptions != nil {
		t.Fatalf("FCMOptions = %+v, want nil for relative url", m.Webpush.FCMOptions)
	}
}

func TestShowWrapsSendErrors(t *testing.T) {
	t.Parallel()
	r := &recordingSender{err: errors.New("quota")}
	s := newSink("tok", r, logx.Nop())
	err := s.Show(context.Background(), presentation())
	if err == nil || errors.Is(err, host.ErrUnsupported) {
		t.Fatalf("Show error = %v, want retriable error", err)
	}
	if r.got == nil {
		t.Fatal("message not sent")
	}
}

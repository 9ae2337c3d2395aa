// Package fcm presents notifications as web push messages through Firebase
// Cloud Messaging.
package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

type Config struct {
	CredentialsFile string
	ProjectID       string
	DeviceToken     string
}

type sender interface {
	Send(ctx context.Context, m *messaging.Message) (string, error)
}

// Sink sends to a single registered device token. FCM cannot retract a
// delivered message, so Sink does not implement Dismiss.
type Sink struct {
	token  string
	client sender
	log    logx.Logger
}

func New(ctx context.Context, cfg Config, log logx.Logger) (*Sink, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("fcm: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm: messaging client: %w", err)
	}
	return newSink(cfg.DeviceToken, client, log), nil
}

func newSink(token string, client sender, log logx.Logger) *Sink {
	return &Sink{token: token, client: client, log: log.With(logx.String("comp", "fcm"))}
}

func (s *Sink) Name() string { return "fcm" }

func (s *Sink) Show(ctx context.Context, p host.Presentation) error {
	id, err := s.client.Send(ctx, Message(s.token, p))
	if err != nil {
		if messaging.IsUnregistered(err) {
			return fmt.Errorf("%w: fcm rejected device token: %v", host.ErrUnsupported, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	s.log.Debug("fcm message sent", logx.String("tag", p.Tag), logx.String("message_id", id))
	return nil
}

// Message maps a presentation onto an FCM webpush message. FCM data values
// must be strings, so non-string payload values are JSON encoded.
func Message(token string, p host.Presentation) *messaging.Message {
	actions := make([]*messaging.WebpushNotificationAction, 0, len(p.Actions))
	for _, a := range p.Actions {
		actions = append(actions, &messaging.WebpushNotificationAction{Action: a.ID, Title: a.Label})
	}

	data := make(map[string]string, len(p.Payload))
	for k, v := range p.Payload {
		if s, ok := v.(string); ok {
			data[k] = s
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		data[k] = string(b)
	}

	wp := &messaging.WebpushConfig{
		Data: data,
		Notification: &messaging.WebpushNotification{
			Title:              p.Title,
			Body:               p.Body,
			Icon:               p.Icon,
			Badge:              p.Badge,
			Tag:                p.Tag,
			Renotify:           true,
			RequireInteraction: p.RequireInteraction,
			Vibrate:            p.Vibrate,
			Actions:            actions,
			CustomData:         map[string]interface{}{"data": p.Payload},
		},
	}
	// FCM only accepts absolute https links.
	if u, ok := p.Payload["url"].(string); ok && strings.HasPrefix(u, "https://") {
		wp.FCMOptions = &messaging.WebpushFCMOptions{Link: u}
	}
	return &messaging.Message{Token: token, Webpush: wp}
}

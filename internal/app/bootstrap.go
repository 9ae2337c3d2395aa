package app

import (
	"context"
	"time"

	"pushgate/internal/config"
	"pushgate/internal/present"
	"pushgate/internal/transport/fcm"
	"pushgate/internal/transport/telegram"
	"pushgate/pkg/logx"
)

// buildSinks creates the presentation sinks enabled in cfg. The Telegram
// adapter is returned separately because it also serves as the remote log
// sink and receives button presses.
func buildSinks(ctx context.Context, cfg *config.Config, log logx.Logger) ([]present.Sink, *telegram.Adapter, error) {
	var (
		sinks []present.Sink
		tg    *telegram.Adapter
	)
	p := cfg.Presentation
	if p.Log {
		sinks = append(sinks, present.NewLogSink(log))
	}
	if p.Telegram.Enabled {
		ad, err := telegram.New(telegram.Config{
			Token:       p.Telegram.Token,
			ChatID:      p.Telegram.ChatID,
			ThreadID:    p.Telegram.ThreadID,
			PollTimeout: config.DurationOr(p.Telegram.PollTimeout, 10*time.Second),
		}, log)
		if err != nil {
			return nil, nil, err
		}
		tg = ad
		sinks = append(sinks, ad)
	}
	if p.FCM.Enabled {
		s, err := fcm.New(ctx, fcm.Config{
			CredentialsFile: p.FCM.CredentialsFile,
			ProjectID:       p.FCM.ProjectID,
			DeviceToken:     p.FCM.DeviceToken,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, tg, nil
}

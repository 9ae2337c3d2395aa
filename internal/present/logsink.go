package present

import (
	"context"

	"pushgate/internal/host"
	"pushgate/pkg/logx"
)

// LogSink writes presentations to the log. Useful headless and in tests.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	return &LogSink{log: log.With(logx.String("sink", "log"))}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Show(_ context.Context, p host.Presentation) error {
	l.log.Info("notification",
		logx.String("tag", p.Tag),
		logx.String("title", p.Title),
		logx.String("body", p.Body),
		logx.Int("actions", len(p.Actions)),
	)
	return nil
}

func (l *LogSink) Dismiss(_ context.Context, tag string) error {
	l.log.Debug("notification closed", logx.String("tag", tag))
	return nil
}

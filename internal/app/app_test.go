package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pushgate/internal/config"
	"pushgate/internal/dispatch"
	"pushgate/internal/gate"
	"pushgate/internal/host"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pushgate.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppHandlesPushEndToEnd(t *testing.T) {
	path := writeConfig(t, `{
		"logging": {"level": "error"},
		"storage": {"driver": "memory"},
		"presentation": {"log": true, "retry_base": "1ms"}
	}`)
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	out, err := a.disp.Dispatch(ctx, dispatch.PushOf(host.NewPushEvent("test", []byte(`{"title":"Hi"}`), true)))
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if out.Decision == nil || out.Decision.Action != gate.Present || out.Decision.Notification.Title != "Hi" {
		t.Fatalf("Decision = %+v, want present with title Hi", out.Decision)
	}
	if sent, _ := a.present.Counts(); sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	st := a.status().(Status)
	if st.Agent != "active" || st.Storage != "memory" {
		t.Fatalf("status = %+v, want active agent on memory storage", st)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if _, err := a.disp.Dispatch(context.Background(), dispatch.PushOf(host.PushEvent{})); err == nil {
		t.Fatal("Dispatch after Stop succeeded, want error")
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `{"storage": {"driver": "cassandra"}}`)
	if _, err := NewApp(path); err == nil {
		t.Fatal("NewApp error = nil, want validation error")
	}
}

func TestSinksChanged(t *testing.T) {
	t.Parallel()
	base := &config.Config{}
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		want   bool
	}{
		{name: "same", mutate: func(*config.Config) {}, want: false},
		{name: "rate only", mutate: func(c *config.Config) { c.Presentation.RatePerSec = 9 }, want: false},
		{name: "telegram toggled", mutate: func(c *config.Config) { c.Presentation.Telegram.Enabled = true }, want: true},
		{name: "fcm token", mutate: func(c *config.Config) { c.Presentation.FCM.DeviceToken = "x" }, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := *base
			tt.mutate(&n)
			if got := sinksChanged(base, &n); got != tt.want {
				t.Fatalf("sinksChanged = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapPresentUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Decode("c.json", []byte(`{}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	pc := mapPresent(cfg)
	if pc.RetryBase != 500*time.Millisecond || pc.RetryMaxDelay != 10*time.Second || pc.HistorySize != config.DefaultHistorySize {
		t.Fatalf("present config = %+v, want defaults", pc)
	}
}

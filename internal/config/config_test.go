package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDecodeJSONAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("cfg.json", []byte(`{"storage":{"driver":"memory"}}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Storage.Key != DefaultStorageKey {
		t.Fatalf("Storage.Key = %q, want %q", cfg.Storage.Key, DefaultStorageKey)
	}
	if cfg.Presentation.HistorySize != DefaultHistorySize {
		t.Fatalf("HistorySize = %d, want %d", cfg.Presentation.HistorySize, DefaultHistorySize)
	}
	if !cfg.Clients.OpenAllowed() {
		t.Fatal("OpenAllowed() = false, want true when omitted")
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	raw := `
logging:
  level: debug
storage:
  driver: sqlite
  path: ./pushgate.db
clients:
  allow_open: false
quiet_hours:
  timezone: Europe/Paris
  watch: true
`
	cfg, err := Decode("cfg.yaml", []byte(raw))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "./pushgate.db" {
		t.Fatalf("Storage = %+v", cfg.Storage)
	}
	if cfg.Clients.OpenAllowed() {
		t.Fatal("OpenAllowed() = true, want false")
	}
	if got := cfg.QuietHours.Location().String(); got != "Europe/Paris" {
		t.Fatalf("Location = %s, want Europe/Paris", got)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		raw  string
		want string
	}{
		{name: "unknown field", file: "c.json", raw: `{"nope":1}`, want: "unknown field"},
		{name: "trailing data", file: "c.json", raw: `{}{}`, want: "trailing data"},
		{name: "bad driver", file: "c.json", raw: `{"storage":{"driver":"mongo"}}`, want: "storage.driver"},
		{name: "sqlite without path", file: "c.json", raw: `{"storage":{"driver":"sqlite"}}`, want: "storage.path"},
		{name: "bad duration", file: "c.json", raw: `{"agent":{"event_timeout":"soon"}}`, want: "agent.event_timeout"},
		{name: "telegram without token", file: "c.json", raw: `{"presentation":{"telegram":{"enabled":true,"chat_id":1}}}`, want: "telegram.token"},
		{name: "public pprof without token", file: "c.json", raw: `{"http":{"enabled":true,"addr":":8080","pprof":true}}`, want: "http.pprof_token"},
		{name: "bad timezone", file: "c.yml", raw: "quiet_hours:\n  timezone: Mars/Base\n", want: "quiet_hours.timezone"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.file, []byte(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Presentation.Telegram.Token = "secret-token"
	newCfg.Storage.Driver = "postgres"
	newCfg.Storage.DSN = "postgres://u:p@db/x"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if strings.Join(changed, ",") != "presentation,storage" {
		t.Fatalf("changed = %v, want [presentation storage]", changed)
	}
	if len(attrs) == 0 {
		t.Fatal("expected attrs")
	}
	if got := RequiresRestart(changed); len(got) != 1 || got[0] != "storage" {
		t.Fatalf("RequiresRestart = %v, want [storage]", got)
	}
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "pushgate.json")
	if err := os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load error: %v", err)
	}
	ch := m.Subscribe(1)
	t.Cleanup(func() { m.Unsubscribe(ch) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher a moment to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "debug" {
				t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
			}
			if m.Get().Logging.Level != "debug" {
				t.Fatal("Get() not updated")
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644)
		case <-deadline:
			t.Fatal("timed out waiting for reload")
		}
	}
}

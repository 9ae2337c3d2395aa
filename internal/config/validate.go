package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Defaults applied by ApplyDefaults when a field is left empty.
const (
	DefaultStorageKey    = "quiet-hours"
	DefaultHTTPAddr      = "127.0.0.1:8080"
	DefaultAMQPQueue     = "pushgate.push"
	DefaultHistorySize   = 300
	DefaultRatePerSec    = 5
	DefaultRetryMax      = 3
	DefaultRetryBase     = "500ms"
	DefaultRetryMaxDelay = "10s"
	DefaultPollTimeout   = "10s"
	DefaultClaimTimeout  = "5s"
	DefaultStopTimeout   = "10s"
)

// ApplyDefaults fills zero-valued fields in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Storage.Key) == "" {
		cfg.Storage.Key = DefaultStorageKey
	}
	if cfg.Agent.Version == "" {
		cfg.Agent.Version = "v1"
	}
	if cfg.Agent.ClaimTimeout == "" {
		cfg.Agent.ClaimTimeout = DefaultClaimTimeout
	}
	if cfg.Agent.StopTimeout == "" {
		cfg.Agent.StopTimeout = DefaultStopTimeout
	}
	p := &cfg.Presentation
	if p.RatePerSec <= 0 {
		p.RatePerSec = DefaultRatePerSec
	}
	if p.RetryMax <= 0 {
		p.RetryMax = DefaultRetryMax
	}
	if p.RetryBase == "" {
		p.RetryBase = DefaultRetryBase
	}
	if p.RetryMaxDelay == "" {
		p.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if p.HistorySize <= 0 {
		p.HistorySize = DefaultHistorySize
	}
	if p.Telegram.PollTimeout == "" {
		p.Telegram.PollTimeout = DefaultPollTimeout
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.AMQP.Queue == "" {
		cfg.AMQP.Queue = DefaultAMQPQueue
	}
	if cfg.AMQP.Prefetch <= 0 {
		cfg.AMQP.Prefetch = 8
	}
}

// Validate checks cross-field consistency. All problems are reported at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path: required for driver %q", cfg.Storage.Driver)
		}
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add("storage.dsn: required for driver %q", cfg.Storage.Driver)
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			add("storage.redis.addr: required for driver redis")
		}
	default:
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	durations := map[string]string{
		"storage.busy_timeout":               cfg.Storage.BusyTimeout,
		"agent.claim_timeout":                cfg.Agent.ClaimTimeout,
		"agent.event_timeout":                cfg.Agent.EventTimeout,
		"agent.stop_timeout":                 cfg.Agent.StopTimeout,
		"presentation.retry_base":            cfg.Presentation.RetryBase,
		"presentation.retry_max_delay":       cfg.Presentation.RetryMaxDelay,
		"presentation.telegram.poll_timeout": cfg.Presentation.Telegram.PollTimeout,
		"http.read_timeout":                  cfg.HTTP.ReadTimeout,
		"http.write_timeout":                 cfg.HTTP.WriteTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if tz := strings.TrimSpace(cfg.QuietHours.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add("quiet_hours.timezone: %w", err)
		}
	}

	if t := cfg.Presentation.Telegram; t.Enabled {
		if strings.TrimSpace(t.Token) == "" {
			add("presentation.telegram.token: required when enabled")
		}
		if t.ChatID == 0 {
			add("presentation.telegram.chat_id: required when enabled")
		}
	}
	if cfg.Logging.Remote.Enabled && !cfg.Presentation.Telegram.Enabled {
		add("logging.remote: requires presentation.telegram to be enabled")
	}
	if f := cfg.Presentation.FCM; f.Enabled {
		if strings.TrimSpace(f.CredentialsFile) == "" {
			add("presentation.fcm.credentials_file: required when enabled")
		}
		if strings.TrimSpace(f.DeviceToken) == "" {
			add("presentation.fcm.device_token: required when enabled")
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.HTTP.Mode)) {
	case "", "debug", "release", "test":
	default:
		add("http.mode: unknown gin mode %q", cfg.HTTP.Mode)
	}
	if h := cfg.HTTP; h.Enabled && h.Pprof && strings.TrimSpace(h.PprofToken) == "" && !isLoopback(h.Addr) {
		add("http.pprof_token: required when pprof is served on a non-loopback address")
	}
	if cfg.AMQP.Enabled && strings.TrimSpace(cfg.AMQP.URL) == "" {
		add("amqp.url: required when enabled")
	}
	if cfg.Presentation.RatePerSec < 0 {
		add("presentation.rate_per_sec: must be >= 0")
	}

	return errors.Join(errs...)
}

func isLoopback(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

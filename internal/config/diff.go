package config

import (
	"reflect"
	"sort"
	"strings"

	"pushgate/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus safe
// structured attrs for logging. Secrets (tokens, passwords, DSNs) are never
// included, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.remote_enabled", newCfg.Logging.Remote.Enabled),
		)
	}

	o, n := oldCfg.Storage, newCfg.Storage
	if strings.TrimSpace(o.Driver) != strings.TrimSpace(n.Driver) ||
		strings.TrimSpace(o.Path) != strings.TrimSpace(n.Path) ||
		o.DSN != n.DSN || o.Key != n.Key || o.BusyTimeout != n.BusyTimeout ||
		o.Redis != n.Redis {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(n.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(n.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(n.DSN) != ""),
			logx.String("storage.key", n.Key),
		)
	}

	if oldCfg.Agent != newCfg.Agent {
		changed = append(changed, "agent")
		attrs = append(attrs,
			logx.String("agent.version", newCfg.Agent.Version),
			logx.String("agent.event_timeout", newCfg.Agent.EventTimeout),
		)
	}

	if oldCfg.QuietHours != newCfg.QuietHours {
		changed = append(changed, "quiet_hours")
		attrs = append(attrs,
			logx.String("quiet_hours.timezone", newCfg.QuietHours.Timezone),
			logx.Bool("quiet_hours.watch", newCfg.QuietHours.Watch),
		)
	}

	op, np := oldCfg.Presentation, newCfg.Presentation
	if op.RatePerSec != np.RatePerSec || op.RetryMax != np.RetryMax ||
		op.RetryBase != np.RetryBase || op.RetryMaxDelay != np.RetryMaxDelay ||
		op.HistorySize != np.HistorySize || op.Log != np.Log ||
		op.Telegram != np.Telegram || op.FCM != np.FCM {
		changed = append(changed, "presentation")
		attrs = append(attrs,
			logx.Int("presentation.rate_per_sec", np.RatePerSec),
			logx.Int("presentation.retry_max", np.RetryMax),
			logx.Bool("presentation.log", np.Log),
			logx.Bool("presentation.telegram_enabled", np.Telegram.Enabled),
			logx.Bool("presentation.telegram_token_set", strings.TrimSpace(np.Telegram.Token) != ""),
			logx.Bool("presentation.fcm_enabled", np.FCM.Enabled),
		)
	}

	if oldCfg.Clients.OpenAllowed() != newCfg.Clients.OpenAllowed() ||
		oldCfg.Clients.BaseURL != newCfg.Clients.BaseURL {
		changed = append(changed, "clients")
		attrs = append(attrs,
			logx.Bool("clients.allow_open", newCfg.Clients.OpenAllowed()),
			logx.String("clients.base_url", newCfg.Clients.BaseURL),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.AMQP.Enabled != newCfg.AMQP.Enabled || oldCfg.AMQP.URL != newCfg.AMQP.URL ||
		oldCfg.AMQP.Queue != newCfg.AMQP.Queue || oldCfg.AMQP.Prefetch != newCfg.AMQP.Prefetch {
		changed = append(changed, "amqp")
		attrs = append(attrs,
			logx.Bool("amqp.enabled", newCfg.AMQP.Enabled),
			logx.String("amqp.queue", newCfg.AMQP.Queue),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RequiresRestart reports which changed sections are only applied at startup.
func RequiresRestart(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "storage", "http", "amqp", "agent", "clients":
			out = append(out, c)
		}
	}
	return out
}

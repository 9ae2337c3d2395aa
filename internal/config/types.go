package config

// Config is the root of pushgate's JSON/YAML configuration.
//
// Durations are Go duration strings ("500ms", "10s", "1m") and are parsed
// with ParseDurationField so errors carry the field path.
type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	Agent        AgentConfig        `json:"agent"`
	QuietHours   QuietHoursConfig   `json:"quiet_hours"`
	Presentation PresentationConfig `json:"presentation"`
	Clients      ClientsConfig      `json:"clients"`
	HTTP         HTTPConfig         `json:"http"`
	AMQP         AMQPConfig         `json:"amqp"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Remote  LoggingRemote `json:"remote"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingRemote forwards warnings and errors to the Telegram chat configured
// under presentation.telegram.
type LoggingRemote struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the ScheduleStore backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pushgate.db" }
type StorageConfig struct {
	// memory | file | sqlite | postgres | redis ("" and "none" mean memory)
	Driver      string      `json:"driver"`
	Path        string      `json:"path,omitempty"`
	DSN         string      `json:"dsn,omitempty"`
	Key         string      `json:"key,omitempty"`
	BusyTimeout string      `json:"busy_timeout,omitempty"`
	Redis       RedisConfig `json:"redis,omitempty"`
}

type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

type AgentConfig struct {
	// Version labels the sessions claimed by this agent.
	Version      string `json:"version,omitempty"`
	ClaimTimeout string `json:"claim_timeout,omitempty"`
	// EventTimeout bounds a single event's pending work. "0s" disables it.
	EventTimeout string `json:"event_timeout,omitempty"`
	StopTimeout  string `json:"stop_timeout,omitempty"`
}

type QuietHoursConfig struct {
	// Timezone is used for boundary announcements and for evaluating pushes.
	// Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
	Watch    bool   `json:"watch"`
}

type PresentationConfig struct {
	RatePerSec    int            `json:"rate_per_sec"`
	RetryMax      int            `json:"retry_max"`
	RetryBase     string         `json:"retry_base"`
	RetryMaxDelay string         `json:"retry_max_delay"`
	HistorySize   int            `json:"history_size,omitempty"`
	Log           bool           `json:"log"`
	Telegram      TelegramConfig `json:"telegram"`
	FCM           FCMConfig      `json:"fcm"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	// PollTimeout is the long-poll window used for callback presses.
	PollTimeout string `json:"poll_timeout"`
}

type FCMConfig struct {
	Enabled         bool   `json:"enabled"`
	CredentialsFile string `json:"credentials_file"`
	ProjectID       string `json:"project_id,omitempty"`
	DeviceToken     string `json:"device_token"`
}

type ClientsConfig struct {
	// AllowOpen is a pointer so an omitted key keeps the default (true).
	AllowOpen *bool  `json:"allow_open,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
}

func (c ClientsConfig) OpenAllowed() bool { return c.AllowOpen == nil || *c.AllowOpen }

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Mode is the gin mode: debug | release | test.
	Mode         string `json:"mode,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	// Pprof mounts /debug/pprof. Off loopback it requires PprofToken.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"`
}

type AMQPConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	Queue       string `json:"queue"`
	Prefetch    int    `json:"prefetch,omitempty"`
	ConsumerTag string `json:"consumer_tag,omitempty"`
}

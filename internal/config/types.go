package config

// Config is the whole process configuration. It is built once at start and
// handed to each component's constructor.
//
// Files may be JSON or YAML; unknown keys are rejected in both.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Feed     FeedConfig     `json:"feed"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Report   ReportConfig   `json:"report"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Secrets  SecretsConfig  `json:"secrets"`
}

// TelegramConfig is the outbound chat endpoint.
//
// ChatIDs accepts numeric ids ("-1001234") and public usernames ("@kanava").
type TelegramConfig struct {
	Token          string   `json:"token,omitempty"` // prefer the secret file or env (do not log)
	ChatIDs        []string `json:"chat_ids"`
	ThreadID       int      `json:"thread_id,omitempty"`
	ParseMode      string   `json:"parse_mode,omitempty"` // default: "Markdown"
	DisablePreview bool     `json:"disable_preview,omitempty"`
}

// FeedConfig describes the upstream events feed.
//
// Format values:
//   - "auto": sniff JSON vs RSS/Atom from Content-Type and body
//   - "json": JSON list, {"events": [...]} or a single object
//   - "rss": RSS or Atom (any format gofeed understands)
type FeedConfig struct {
	URL       string `json:"url"`
	SampleURL string `json:"sample_url,omitempty"`
	Format    string `json:"format,omitempty"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout   string `json:"timeout,omitempty"`
	RetryMax  int    `json:"retry_max,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// StorageConfig selects the event store backend.
//
// Example:
//
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@db/linkki" }
//	"storage": { "driver": "sqlite", "path": "./data/linkkibot.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	DSN          string `json:"dsn,omitempty"`  // postgres (do not log)
	Path         string `json:"path,omitempty"` // sqlite
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// NotifierConfig controls outbound delivery pacing.
//
// All durations are Go duration strings.
type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// ReportConfig controls summaries and how naive event times are read.
type ReportConfig struct {
	// Timezone is an IANA name; empty means the host's local zone.
	Timezone         string `json:"timezone,omitempty"`
	WeekStart        string `json:"week_start,omitempty"` // "monday" (default) .. "sunday"
	DescriptionLimit int    `json:"description_limit,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards warnings and errors to an operator chat.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     string `json:"chat_id"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// MetricsConfig enables pushing run metrics to a Prometheus Pushgateway.
// An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `json:"pushgateway_url,omitempty"`
	Job            string `json:"job,omitempty"`
	Instance       string `json:"instance,omitempty"`
}

// SecretsConfig points at mounted secret files (Docker/Swarm style).
type SecretsConfig struct {
	Dir string `json:"dir,omitempty"` // default: /var/run/secrets
}

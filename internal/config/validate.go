package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSQLitePath       = "./linkkibot.db"
	DefaultParseMode        = "Markdown"
	DefaultDescriptionLimit = 400
)

// ApplyDefaults fills zero fields. It never overrides explicit values.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Storage.Driver) == "" {
		if strings.TrimSpace(c.Storage.DSN) != "" {
			c.Storage.Driver = "postgres"
		} else {
			c.Storage.Driver = "sqlite"
		}
	}
	if isSQLite(c.Storage.Driver) && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultSQLitePath
	}
	if strings.TrimSpace(c.Telegram.ParseMode) == "" {
		c.Telegram.ParseMode = DefaultParseMode
	}
	if strings.TrimSpace(c.Feed.Format) == "" {
		c.Feed.Format = "auto"
	}
	if c.Report.DescriptionLimit <= 0 {
		c.Report.DescriptionLimit = DefaultDescriptionLimit
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Metrics.Job) == "" {
		c.Metrics.Job = "linkkibot"
	}
}

// Validate checks values that would otherwise fail late (mid-run).
// Required-ness of the token and chat ids depends on the run mode and is
// checked by the app.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn (or %s) is required for postgres", EnvDatabaseURL))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.MaxOpenConns < 0 {
		errs = append(errs, errors.New("storage.max_open_conns must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Feed.Format)) {
	case "", "auto", "json", "rss":
	default:
		errs = append(errs, fmt.Errorf("feed.format: unknown format %q (auto|json|rss)", c.Feed.Format))
	}
	if c.Feed.RetryMax < 0 {
		errs = append(errs, errors.New("feed.retry_max must be >= 0"))
	}
	if c.Notifier.RetryMax < 0 {
		errs = append(errs, errors.New("notifier.retry_max must be >= 0"))
	}
	if c.Notifier.RatePerSec < 0 {
		errs = append(errs, errors.New("notifier.rate_per_sec must be >= 0"))
	}

	durations := map[string]string{
		"feed.timeout":             c.Feed.Timeout,
		"storage.busy_timeout":     c.Storage.BusyTimeout,
		"notifier.retry_base":      c.Notifier.RetryBase,
		"notifier.retry_max_delay": c.Notifier.RetryMaxDelay,
		"notifier.send_timeout":    c.Notifier.SendTimeout,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := ParseLocationField("report.timezone", c.Report.Timezone); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseWeekdayField("report.week_start", c.Report.WeekStart); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Telegram.Enabled && strings.TrimSpace(c.Logging.Telegram.ChatID) == "" {
		errs = append(errs, errors.New("logging.telegram.chat_id is required when logging.telegram.enabled"))
	}

	return errors.Join(errs...)
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "sqlite" || d == "sqlite3"
}

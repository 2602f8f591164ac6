package app

import (
	"strings"
	"time"

	"linkkibot/internal/config"
	"linkkibot/internal/feed"
	"linkkibot/internal/metrics"
	"linkkibot/internal/notifier"
	"linkkibot/internal/storage"
	logx "linkkibot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config, loc *time.Location) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:       strings.ToLower(strings.TrimSpace(sc.Driver)),
		DSN:          strings.TrimSpace(sc.DSN),
		Path:         strings.TrimSpace(sc.Path),
		BusyTimeout:  busy,
		MaxOpenConns: sc.MaxOpenConns,
		Location:     loc,
	}, nil
}

func mapFeedConfig(cfg *config.Config) (feed.Config, error) {
	fc := cfg.Feed
	timeout, err := config.ParseDurationOrDefault("feed.timeout", fc.Timeout, 10*time.Second)
	if err != nil {
		return feed.Config{}, err
	}
	return feed.Config{
		Format:    feed.Format(strings.ToLower(strings.TrimSpace(fc.Format))),
		Timeout:   timeout,
		RetryMax:  fc.RetryMax,
		UserAgent: fc.UserAgent,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := cfg.Notifier
	base, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", nc.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		SendTimeout:   sendTimeout,
		ThreadID:      cfg.Telegram.ThreadID,
	}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapMetricsConfig(cfg *config.Config) metrics.Config {
	return metrics.Config{
		PushgatewayURL: strings.TrimSpace(cfg.Metrics.PushgatewayURL),
		Job:            cfg.Metrics.Job,
		Instance:       cfg.Metrics.Instance,
	}
}

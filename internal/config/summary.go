package config

import (
	"strings"

	logx "linkkibot/pkg/logx"
)

// Summary returns safe structured attrs describing cfg. Secrets (bot token,
// database DSN) are reported only as "set" flags.
func Summary(cfg *Config) []logx.Field {
	if cfg == nil {
		cfg = &Config{}
	}
	attrs := make([]logx.Field, 0, 16)

	attrs = append(attrs,
		logx.Bool("telegram.token_set", strings.TrimSpace(cfg.Telegram.Token) != ""),
		logx.Int("telegram.chat_count", len(cfg.Telegram.ChatIDs)),
		logx.String("telegram.parse_mode", cfg.Telegram.ParseMode),
	)

	attrs = append(attrs,
		logx.Bool("feed.url_set", strings.TrimSpace(cfg.Feed.URL) != ""),
		logx.Bool("feed.sample_url_set", strings.TrimSpace(cfg.Feed.SampleURL) != ""),
		logx.String("feed.format", cfg.Feed.Format),
	)

	attrs = append(attrs, logx.String("storage.driver", cfg.Storage.Driver))
	if isSQLite(cfg.Storage.Driver) {
		attrs = append(attrs, logx.String("storage.path", cfg.Storage.Path))
	} else {
		attrs = append(attrs, logx.Bool("storage.dsn_set", strings.TrimSpace(cfg.Storage.DSN) != ""))
	}

	attrs = append(attrs,
		logx.String("report.timezone", cfg.Report.Timezone),
		logx.Int("report.description_limit", cfg.Report.DescriptionLimit),
		logx.String("logx.level", cfg.Logging.Level),
		logx.Bool("logx.telegram_enabled", cfg.Logging.Telegram.Enabled),
		logx.Bool("metrics.push_enabled", strings.TrimSpace(cfg.Metrics.PushgatewayURL) != ""),
	)
	return attrs
}

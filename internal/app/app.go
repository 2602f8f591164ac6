// Package app wires one bot invocation: fetch the feed, store new events,
// announce them and optionally post a period digest.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"linkkibot/internal/config"
	"linkkibot/internal/event"
	"linkkibot/internal/feed"
	"linkkibot/internal/format"
	"linkkibot/internal/metrics"
	"linkkibot/internal/notifier"
	"linkkibot/internal/storage"
	kit "linkkibot/internal/transport"
	telegram "linkkibot/internal/transport/telegram/adapter"
	logx "linkkibot/pkg/logx"
)

// Options are per-invocation choices and test seams.
type Options struct {
	Modes  Modes
	Sample bool
	// Stdout receives dry-run output; nil means logx.Stdout().
	Stdout io.Writer
	// Sender replaces the Telegram adapter.
	Sender kit.Sender
	// Now replaces time.Now.
	Now func() time.Time
}

type App struct {
	cfg   *config.Config
	modes Modes
	url   string

	log   logx.Logger
	logs  *logx.Service
	store storage.Store
	feed  *feed.Client
	notif *notifier.Service
	met   *metrics.Run

	out       io.Writer
	now       func() time.Time
	loc       *time.Location
	weekStart time.Weekday
	sendOpt   *kit.SendOptions
}

// Stats summarizes a finished run.
type Stats struct {
	Fetched int
	New     int
	Window  int
	Sent    int
}

// NewApp validates mode-dependent requirements and opens every collaborator.
// The caller must Close the returned App.
func NewApp(cfg *config.Config, opt Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	m := opt.Modes
	if !m.Poll {
		return nil, errors.New("app: nothing to do (modes must include poll_events or post_events)")
	}

	url := strings.TrimSpace(cfg.Feed.URL)
	if opt.Sample {
		url = strings.TrimSpace(cfg.Feed.SampleURL)
	}
	var errs []error
	if url == "" {
		if opt.Sample {
			errs = append(errs, fmt.Errorf("feed.sample_url (or %s) is required with -sample", config.EnvSampleURL))
		} else {
			errs = append(errs, fmt.Errorf("feed.url (or %s) is required", config.EnvEventsURL))
		}
	}
	if !m.DryRun {
		if opt.Sender == nil && strings.TrimSpace(cfg.Telegram.Token) == "" {
			errs = append(errs, fmt.Errorf("telegram.token (or %s) is required unless dry-run", config.EnvBotToken))
		}
		if len(cfg.Telegram.ChatIDs) == 0 {
			errs = append(errs, fmt.Errorf("telegram.chat_ids (or %s) is required unless dry-run", config.EnvChatID))
		}
	}
	loc, err := config.ParseLocationField("report.timezone", cfg.Report.Timezone)
	if err != nil {
		errs = append(errs, err)
	}
	weekStart, err := config.ParseWeekdayField("report.week_start", cfg.Report.WeekStart)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	sender := opt.Sender
	if sender == nil && strings.TrimSpace(cfg.Telegram.Token) != "" {
		ad, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			Offline: m.DryRun,
		}, logx.NewConsole(cfg.Logging.Level))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	logSvc, log := logx.New(mapLogConfig(cfg), sender)
	log = log.With(logx.String("run", ulid.Make().String()))

	a := &App{
		cfg:       cfg,
		modes:     m,
		url:       url,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		out:       opt.Stdout,
		now:       opt.Now,
		loc:       loc,
		weekStart: weekStart,
		sendOpt: &kit.SendOptions{
			ParseMode:      cfg.Telegram.ParseMode,
			DisablePreview: cfg.Telegram.DisablePreview,
		},
	}
	if a.out == nil {
		a.out = logx.Stdout()
	}
	if a.now == nil {
		a.now = time.Now
	}

	fail := func(err error) (*App, error) {
		_ = a.Close()
		return nil, err
	}

	sc, err := mapStorageConfig(cfg, loc)
	if err != nil {
		return fail(err)
	}
	st, err := storage.Open(sc, log)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}
	a.store = st

	fc, err := mapFeedConfig(cfg)
	if err != nil {
		return fail(err)
	}
	a.feed = feed.New(fc, log)

	if sender != nil {
		nc, err := mapNotifierConfig(cfg)
		if err != nil {
			return fail(err)
		}
		a.notif = notifier.New(nc, sender, log)
	}
	a.met = metrics.NewRun(mapMetricsConfig(cfg), log)
	return a, nil
}

// Run executes the configured modes once. Fetch, schema and digest query
// failures abort the run; a failed insert skips that record only.
func (a *App) Run(ctx context.Context) (stats Stats, err error) {
	a.log.Info("run started", logx.String("modes", a.modes.String()), logx.String("url", a.url))
	defer func() {
		if err != nil {
			a.log.Error("run failed", logx.Err(err))
		}
		if perr := a.met.Finish(context.WithoutCancel(ctx), err); perr != nil {
			a.log.Warn("metrics push failed", logx.Err(perr))
		}
	}()

	if err = a.store.EnsureSchema(ctx); err != nil {
		return stats, fmt.Errorf("ensure schema: %w", err)
	}

	if err = a.poll(ctx, &stats); err != nil {
		return stats, err
	}
	if a.modes.Post {
		if err = a.post(ctx, &stats); err != nil {
			return stats, err
		}
	}

	a.log.Info(fmt.Sprintf("processed %d events, sent %d messages", stats.Fetched+stats.Window, stats.Sent),
		logx.Int("fetched", stats.Fetched),
		logx.Int("new", stats.New),
		logx.Int("window", stats.Window),
		logx.Int("sent", stats.Sent),
	)
	return stats, nil
}

func (a *App) poll(ctx context.Context, stats *Stats) error {
	recs, err := a.feed.Fetch(ctx, a.url)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	stats.Fetched = len(recs)
	a.met.Fetched(len(recs))
	if len(recs) == 0 {
		a.log.Info("no events found")
		return nil
	}

	fresh := make([]event.Record, 0, len(recs))
	for _, rec := range recs {
		isNew, err := a.store.InsertIfNew(ctx, rec)
		if err != nil {
			a.met.StoreError()
			a.log.Warn("store event failed", logx.Err(err))
			continue
		}
		a.met.Stored(isNew)
		if !isNew {
			if key, ok := event.IdentityKey(rec); ok {
				a.log.Debug("skipping already saved event", logx.String("key", key))
			}
			continue
		}
		fresh = append(fresh, rec)
	}
	stats.New = len(fresh)

	limit := a.cfg.Report.DescriptionLimit
	for _, rec := range fresh {
		if a.deliver(ctx, format.Announcement(rec, limit)) {
			stats.Sent++
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) post(ctx context.Context, stats *Stats) error {
	start, end := Window(a.now().In(a.loc), a.modes.Period, a.weekStart)
	recs, err := a.store.QueryWindow(ctx, start, end)
	if err != nil {
		return fmt.Errorf("query %s window: %w", a.modes.Period, err)
	}
	stats.Window = len(recs)
	a.met.WindowEvents(len(recs))
	a.log.Debug("window loaded", logx.String("period", a.modes.Period.String()), logx.Time("start", start), logx.Time("end", end), logx.Int("events", len(recs)))

	if a.deliver(ctx, format.Digest(a.modes.Period.Title(), recs, a.cfg.Report.DescriptionLimit)) {
		stats.Sent++
	}
	return nil
}

// deliver sends text to every configured chat and reports whether all of
// them accepted it. Dry runs print instead and report false.
func (a *App) deliver(ctx context.Context, text string) bool {
	if a.modes.DryRun {
		fmt.Fprintf(a.out, "DRY-RUN:\n%s\n", text)
		return false
	}
	rep, err := a.notif.Send(ctx, a.cfg.Telegram.ChatIDs, text, a.sendOpt)
	a.met.Messages(rep.Sent(), rep.Failed())
	if err != nil {
		a.log.Error("send failed", logx.Err(err))
		return false
	}
	if rep.Failed() > 0 {
		a.log.Error("message not delivered to every chat", logx.Any("delivered", rep.Delivered()))
		return false
	}
	return true
}

// Close releases the store and flushes logs. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
		a.logs = nil
	}
	return errors.Join(errs...)
}

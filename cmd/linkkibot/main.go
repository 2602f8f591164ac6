package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"linkkibot/internal/app"
	"linkkibot/internal/config"
	logx "linkkibot/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath string
		modes   string
		sample  bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to config json/yaml (optional; env vars are applied on top)")
	flag.StringVar(&modes, "modes", "", "comma separated: poll_events | post_events, day | week | month, dry-run")
	flag.BoolVar(&sample, "sample", false, "fetch from feed.sample_url (SAMPLE_URL) instead of feed.url")
	flag.Parse()

	boot := logx.NewConsole("info").With(logx.String("comp", "main"))

	m, err := app.ParseModes(append([]string{modes}, flag.Args()...))
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage:", err)
		flag.Usage()
		return 2
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetLogger(boot)
	cfg, err := cfgm.Load()
	if err != nil {
		boot.Error("config load failed", logx.Err(err))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewApp(cfg, app.Options{Modes: m, Sample: sample})
	if err != nil {
		boot.Error("startup failed", logx.Err(err))
		return 1
	}
	defer a.Close()

	// Run logs its own failure through the configured sinks.
	if _, err := a.Run(ctx); err != nil {
		return 1
	}
	return 0
}

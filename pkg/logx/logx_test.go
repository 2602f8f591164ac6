package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	kit "linkkibot/internal/transport"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (r *recordingSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.to = append(r.to, to)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func TestNopAndZeroLoggersAreSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	zero.Info("ei mitään", String("k", "v"))
	Nop().With(Int("n", 1)).Error("ei mitään")
}

func TestJSONLoggerWritesFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))
	log.Debug("hello", Int("n", 3), Bool("ok", true))
	out := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"ok":true`, `"message":"hello"`, `"caller":"logx_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %q", buf.String())
	}
	if log.Enabled(LevelInfo) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with level")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{" DEBUG ", LevelDebug},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"", LevelInfo},
		{"loud", LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, LevelInfo); got != tc.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatTelegramJSON(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"fetch failed","url":"https://e.x","comp":"feed"}` + "\n")
	got := formatTelegramJSON(line)
	want := "[WARN] fetch failed\n- comp=feed\n- url=https://e.x"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := formatTelegramJSON([]byte("  not json  ")); got != "not json" {
		t.Fatalf("raw line = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("abc", 12); got != "abc" {
		t.Fatalf("got %q", got)
	}
	// Finnish text is cut on rune boundaries, never inside a character.
	got := truncate(strings.Repeat("ä", 15), 12)
	if got != strings.Repeat("ä", 9)+"..." || !utf8.ValidString(got) {
		t.Fatalf("got %q", got)
	}
	if got := truncate("öööö", 3); got != "ööö" {
		t.Fatalf("got %q", got)
	}
}

func TestServiceForwardsWarningsToTelegram(t *testing.T) {
	rs := &recordingSender{}
	svc, log := New(Config{
		Level: "debug",
		File:  FileConfig{Enabled: true, Path: t.TempDir() + "/linkkibot.log"},
		Telegram: TelegramConfig{
			Enabled:    true,
			ChatID:     "@operaattori",
			RatePerSec: 100,
		},
	}, rs)

	log.Info("tavallinen")
	log.Warn("varoitus", String("comp", "feed"))
	log.Error("virhe")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Lines logged after Close are dropped, not sent or panicking.
	log.Error("liian myöhään")

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.sent) != 2 {
		t.Fatalf("sent %d messages, want 2: %q", len(rs.sent), rs.sent)
	}
	if !strings.HasPrefix(rs.sent[0], "[WARN] varoitus") || !strings.HasPrefix(rs.sent[1], "[ERROR] virhe") {
		t.Fatalf("unexpected messages %q", rs.sent)
	}
	if rs.to[0].ChatID != "@operaattori" {
		t.Fatalf("target = %+v", rs.to[0])
	}
}

func TestServiceSetTelegramTarget(t *testing.T) {
	rs := &recordingSender{}
	svc, log := New(Config{Level: "info", Telegram: TelegramConfig{Enabled: true, MinLevel: "error", RatePerSec: 100}}, rs)
	log.Error("ei kohdetta")
	svc.SetTelegramTarget("-100123", 7)
	log.Warn("alle minimitason")
	log.Error("perillä")
	_ = svc.Close()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.sent) != 1 || !strings.Contains(rs.sent[0], "perillä") {
		t.Fatalf("sent = %q", rs.sent)
	}
	if rs.to[0] != (kit.ChatTarget{ChatID: "-100123", ThreadID: 7}) {
		t.Fatalf("target = %+v", rs.to[0])
	}
}

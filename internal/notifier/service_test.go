package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kit "linkkibot/internal/transport"
	logx "linkkibot/pkg/logx"
)

// scriptedSender fails each chat with the queued errors before succeeding.
type scriptedSender struct {
	mu    sync.Mutex
	fails map[string][]error
	calls map[string]int
	opts  []*kit.SendOptions
}

func (f *scriptedSender) SendText(_ context.Context, to kit.ChatTarget, _ string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[to.ChatID]++
	f.opts = append(f.opts, opt)
	if q := f.fails[to.ChatID]; len(q) > 0 {
		f.fails[to.ChatID] = q[1:]
		return kit.MessageRef{}, q[0]
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 42}, nil
}

func newTestService(cfg Config, s kit.Sender) (*Service, *[]time.Duration) {
	svc := New(cfg, s, logx.Nop())
	var slept []time.Duration
	svc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return svc, &slept
}

func TestSendDeliversToEveryRecipient(t *testing.T) {
	t.Parallel()
	snd := &scriptedSender{fails: map[string][]error{
		"@rikki": {fmt.Errorf("%w: chat not found", kit.ErrPermanent)},
	}}
	svc, _ := newTestService(Config{RatePerSec: 1000, RetryMax: 2}, snd)

	opt := &kit.SendOptions{ParseMode: "Markdown"}
	rep, err := svc.Send(context.Background(), []string{"-1001", " ", "@rikki", "-1002"}, "moi", opt)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := map[string]bool{"-1001": true, "@rikki": false, "-1002": true}
	got := rep.Delivered()
	if len(got) != len(want) {
		t.Fatalf("delivered = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("delivered[%s] = %v, want %v", k, got[k], v)
		}
	}
	if rep.Sent() != 2 || rep.Failed() != 1 {
		t.Fatalf("sent/failed = %d/%d", rep.Sent(), rep.Failed())
	}
	if snd.calls["@rikki"] != 1 {
		t.Fatalf("permanent failure retried %d times", snd.calls["@rikki"]-1)
	}
	if rep.Results[0].MessageID != 42 || rep.Results[0].ChatID != "-1001" {
		t.Fatalf("first result = %+v", rep.Results[0])
	}
	for _, o := range snd.opts {
		if o != opt {
			t.Fatal("send options not passed through")
		}
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("telegram: Internal Server Error (500)")
	snd := &scriptedSender{fails: map[string][]error{"1": {boom, boom}}}
	svc, slept := newTestService(Config{RatePerSec: 1000, RetryMax: 2, RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}, snd)

	rep, err := svc.Send(context.Background(), []string{"1"}, "moi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if r := rep.Results[0]; !r.OK || r.Attempts != 3 || r.Err != nil {
		t.Fatalf("result = %+v", r)
	}
	if len(*slept) != 2 {
		t.Fatalf("slept %d times, want 2", len(*slept))
	}
	if d := (*slept)[0]; d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first backoff %v outside jitter range", d)
	}
}

func TestSendGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	snd := &scriptedSender{fails: map[string][]error{"1": {boom, boom, boom}}}
	svc, _ := newTestService(Config{RatePerSec: 1000, RetryMax: 1}, snd)

	rep, err := svc.Send(context.Background(), []string{"1"}, "moi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if r := rep.Results[0]; r.OK || r.Attempts != 2 || !errors.Is(r.Err, boom) {
		t.Fatalf("result = %+v", r)
	}
}

func TestSendHonorsRetryAfter(t *testing.T) {
	t.Parallel()
	flood := &kit.RetryAfterError{After: 3 * time.Second, Err: errors.New("too many requests")}
	snd := &scriptedSender{fails: map[string][]error{"1": {flood}, "2": {&kit.RetryAfterError{After: time.Hour}}}}
	svc, slept := newTestService(Config{RatePerSec: 1000, RetryMax: 3, RetryMaxDelay: 10 * time.Second}, snd)

	rep, err := svc.Send(context.Background(), []string{"1", "2"}, "moi", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
		t.Fatalf("slept = %v, want [3s]", *slept)
	}
	got := rep.Delivered()
	if !got["1"] || got["2"] {
		t.Fatalf("delivered = %v", got)
	}
}

func TestSendNoRecipients(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(Config{}, &scriptedSender{})
	if _, err := svc.Send(context.Background(), []string{"", "  "}, "moi", nil); !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("err = %v", err)
	}
}

func TestSendStopsOnCancel(t *testing.T) {
	t.Parallel()
	snd := &scriptedSender{}
	svc, _ := newTestService(Config{RatePerSec: 1000}, snd)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := svc.Send(ctx, []string{"1", "2"}, "moi", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(rep.Results) != 0 || len(snd.calls) != 0 {
		t.Fatalf("sent after cancel: %+v", rep)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: time.Second, RetryMaxDelay: 5 * time.Second}
	for attempt := 1; attempt <= 6; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 2); d < 1400*time.Millisecond || d > 2600*time.Millisecond {
		t.Fatalf("attempt 2 delay %v, want 2s +-30%%", d)
	}
}

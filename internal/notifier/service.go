package notifier

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"golang.org/x/time/rate"

	kit "linkkibot/internal/transport"
	logx "linkkibot/pkg/logx"
)

var ErrNoRecipients = errors.New("notifier: no recipients")

// Service sends texts through a transport.Sender. It is safe for concurrent
// use; the rate limit is shared by all callers.
type Service struct {
	cfg     Config
	sender  kit.Sender
	log     logx.Logger
	limiter *rate.Limiter

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log.With(logx.String("comp", "notifier")),
		sleep:  sleepCtx,
	}
	s.apply(cfg)
	return s
}

func (s *Service) apply(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	s.cfg = cfg
	// burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text to every chat in chatIDs, in order. Blank ids are
// skipped. It returns ErrNoRecipients when nothing is left to send to, or
// ctx.Err() when cancelled; per-chat failures are reported in the Report
// only.
func (s *Service) Send(ctx context.Context, chatIDs []string, text string, opt *kit.SendOptions) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	targets := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		if id = strings.TrimSpace(id); id != "" {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return Report{}, ErrNoRecipients
	}

	rep := Report{Results: make([]Result, 0, len(targets))}
	for _, id := range targets {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := s.sendOne(ctx, id, text, opt)
		if !res.OK {
			s.log.Warn("delivery failed", logx.String("chat", id), logx.Int("attempts", res.Attempts), logx.Err(res.Err))
		}
		rep.Results = append(rep.Results, res)
	}
	return rep, ctx.Err()
}

func (s *Service) sendOne(ctx context.Context, chatID, text string, opt *kit.SendOptions) Result {
	cfg := s.cfg
	lim := s.limiter

	res := Result{ChatID: chatID}
	if s.sender == nil {
		res.Err = errors.New("notifier: no sender configured")
		return res
	}
	to := kit.ChatTarget{ChatID: chatID, ThreadID: cfg.ThreadID}
	maxAttempts := 1 + cfg.RetryMax

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt
		if err := lim.Wait(ctx); err != nil {
			res.Err = err
			return res
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		ref, err := s.sender.SendText(callCtx, to, text, opt)
		cancel()
		if err == nil {
			res.OK = true
			res.MessageID = ref.MessageID
			res.Err = nil
			return res
		}
		res.Err = err
		s.log.Debug("send failed", logx.String("chat", chatID), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if errors.Is(err, kit.ErrPermanent) || attempt >= maxAttempts {
			return res
		}

		delay := retryDelay(cfg, attempt)
		var ra *kit.RetryAfterError
		if errors.As(err, &ra) {
			if ra.After > cfg.RetryMaxDelay {
				return res
			}
			delay = ra.After
		}
		if err := s.sleep(ctx, delay); err != nil {
			return res
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryDelay is the wait before the attempt after the given one:
// base * 2^(attempt-1), capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}

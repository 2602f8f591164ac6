package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "linkkibot/internal/transport"
	logx "linkkibot/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
	// Timeout bounds a single Bot API request; 0 means 30s.
	Timeout time.Duration
	// Offline skips the getMe handshake.
	Offline bool
}

// Adapter sends messages through the Telegram Bot API. It never polls for
// updates.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}, nil
}

// chatRecipient lets telebot address chats by username as well as by id.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

const telegramTextLimit = 4000

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		// Best-effort: don't split inside a tag for HTML parse mode.
		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen := -1
			lastClose := -1
			for i := start; i < end; i++ {
				if rs[i] == '<' {
					lastOpen = i
				} else if rs[i] == '>' {
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		if chunk != "" {
			out = append(out, chunk)
		}

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chatID := strings.TrimSpace(to.ChatID)
	if chatID == "" {
		return kit.MessageRef{}, fmt.Errorf("%w: empty chat id", kit.ErrPermanent)
	}

	if strings.TrimSpace(text) == "" {
		return kit.MessageRef{}, fmt.Errorf("%w: empty message", kit.ErrPermanent)
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)

	var first kit.MessageRef
	for i, chunk := range chunks {
		if ctx != nil {
			if err := ctx.Err(); err != nil {
				return first, err
			}
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}
		msg, err := a.bot.Send(chatRecipient(chatID), chunk, sendOpt)
		if err != nil {
			a.log.Debug("send failed", logx.String("chat", chatID), logx.Int("chunk", i), logx.Err(err))
			return first, classifyError(err)
		}
		if i == 0 && msg != nil {
			first = kit.MessageRef{ChatID: chatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

var (
	reRetryAfter = regexp.MustCompile(`retry after (\d+)`)
	reAPICode    = regexp.MustCompile(`\((\d{3})\)\s*$`)
)

// classifyError maps Bot API failures onto the transport error kinds.
// telebot reports most API errors as plain text ending in "(code)".
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if m := reRetryAfter.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &kit.RetryAfterError{After: time.Duration(n) * time.Second, Err: err}
	}
	if m := reAPICode.FindStringSubmatch(msg); m != nil {
		switch m[1] {
		case "400", "401", "403", "404":
			return fmt.Errorf("%w: %w", kit.ErrPermanent, err)
		}
	}
	return err
}

package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "linkkibot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

type TelegramConfig struct {
	Enabled    bool
	ChatID     string
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	defaultLogFile  = "./linkkibot.log"
	tgQueueSize     = 256
	tgDrainDeadline = 5 * time.Second
)

// Service owns the log outputs. Loggers obtained from it follow Apply.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender  kit.Sender
	tgQueue chan telegramItem
	tgOnce  sync.Once
	tgDone  chan struct{}

	// guarded by mu
	target   kit.ChatTarget
	limiter  *rate.Limiter
	minLevel zerolog.Level
	closed   bool
}

type telegramItem struct {
	to  kit.ChatTarget
	msg string
}

// New creates the logging service, applies cfg and returns the root Logger.
// sender may be nil, in which case the Telegram sink stays silent.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	s := &Service{
		sender:  sender,
		tgQueue: make(chan telegramItem, tgQueueSize),
	}
	s.root.Store(zerolog.New(newConsoleWriter(Stderr())).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetTelegramTarget points the Telegram sink at another chat.
func (s *Service) SetTelegramTarget(chatID string, threadID int) {
	s.mu.Lock()
	s.target = kit.ChatTarget{ChatID: strings.TrimSpace(chatID), ThreadID: threadID}
	s.mu.Unlock()
}

// Apply swaps outputs and levels. It is safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Telegram.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Telegram.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if id := strings.TrimSpace(cfg.Telegram.ChatID); id != "" {
		s.target = kit.ChatTarget{ChatID: id, ThreadID: cfg.Telegram.ThreadID}
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stderr()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled && s.sender != nil {
		s.tgOnce.Do(func() {
			s.tgDone = make(chan struct{})
			go s.telegramWorker()
		})
		writers = append(writers, &telegramWriter{svc: s})
		if s.target.ChatID == "" {
			fmt.Fprintln(Stderr(), "logx: telegram logging enabled but chat_id is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stderr()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(zl)
}

// Close flushes queued Telegram messages (bounded) and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	f := s.file
	s.file = nil
	done := s.tgDone
	s.mu.Unlock()

	if done != nil {
		close(s.tgQueue)
		select {
		case <-done:
		case <-time.After(tgDrainDeadline):
			fmt.Fprintln(Stderr(), "logx: telegram sink did not drain before deadline")
		}
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

func (s *Service) telegramWorker() {
	defer close(s.tgDone)
	for it := range s.tgQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := s.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		cancel()
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: telegram sink send failed: %v\n", err)
		}
	}
}

// enqueue never blocks logging; a full queue drops the line.
func (s *Service) enqueue(it telegramItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.tgQueue <- it:
	default:
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChatTarget addresses a chat. ChatID is either a numeric id ("-1001234")
// or a public username ("@kanava").
type ChatTarget struct {
	ChatID   string
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    string
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers text to a chat. Implementations split text that exceeds
// the platform's message limit and return the first message.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)

func (f SenderFunc) SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error) {
	return f(ctx, to, text, opt)
}

// ErrPermanent marks failures that retrying cannot fix (unknown chat, bot
// blocked, malformed request).
var ErrPermanent = errors.New("permanent delivery failure")

// RetryAfterError reports that the endpoint asked the caller to back off.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"linkkibot/internal/event"
	logx "linkkibot/pkg/logx"
)

type Format string

const (
	FormatAuto Format = "auto"
	FormatJSON Format = "json"
	FormatRSS  Format = "rss"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "linkkibot/1.0 (+https://t.me/linkkibot)"
	maxBodyBytes     = 16 << 20
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("feed: unexpected HTTP status")

var (
	errTooLarge   = errors.New("feed: body too large")
	errBadRequest = errors.New("feed: bad request")
)

// StatusError carries the HTTP status of a failed fetch.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Unwrap() error { return ErrStatus }

type Config struct {
	Format        Format
	Timeout       time.Duration
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	UserAgent     string
}

type Client struct {
	cfg    Config
	http   *http.Client
	parser *gofeed.Parser
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.Format == "" {
		cfg.Format = FormatAuto
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:    cfg,
		http:   newHTTPClient(cfg.Timeout),
		parser: gofeed.NewParser(),
		log:    log.With(logx.String("comp", "feed")),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Fetch downloads url and decodes it into records. Transport errors, 429 and
// 5xx responses are retried up to RetryMax times; other statuses and decode
// errors are returned at once.
func (c *Client) Fetch(ctx context.Context, url string) ([]event.Record, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("feed: empty url")
	}
	var (
		body        []byte
		contentType string
		err         error
	)
	delay := c.cfg.RetryBase
	for attempt := 1; ; attempt++ {
		body, contentType, err = c.get(ctx, url)
		if err == nil {
			break
		}
		if !retryable(err) || attempt > c.cfg.RetryMax || ctx.Err() != nil {
			return nil, err
		}
		c.log.Debug("fetch failed, retrying", logx.String("url", url), logx.Int("attempt", attempt), logx.Duration("backoff", delay), logx.Err(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = min(delay*2, c.cfg.RetryMaxDelay)
	}

	recs, err := c.decode(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("feed: decode %s: %w", url, err)
	}
	c.log.Debug("fetched", logx.String("url", url), logx.Int("records", len(recs)), logx.Int("bytes", len(body)))
	return recs, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", errBadRequest, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml;q=0.9, */*;q=0.5")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("feed: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &StatusError{URL: url, Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("feed: read %s: %w", url, err)
	}
	if len(body) > maxBodyBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", errTooLarge, url, maxBodyBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, errTooLarge) && !errors.Is(err, errBadRequest) && !errors.Is(err, context.Canceled)
}

func (c *Client) decode(body []byte, contentType string) ([]event.Record, error) {
	switch c.cfg.Format {
	case FormatJSON:
		return decodeJSON(body)
	case FormatRSS:
		return c.decodeFeed(body)
	}
	if looksJSON(body, contentType) {
		return decodeJSON(body)
	}
	return c.decodeFeed(body)
}

func looksJSON(body []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "feed+json"):
		return false
	case strings.Contains(ct, "json"):
		return true
	case strings.Contains(ct, "xml"):
		return false
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{')
}

func decodeJSON(body []byte) ([]event.Record, error) {
	v, err := event.DecodeAny(body)
	if err != nil {
		return nil, err
	}
	return event.Normalize(v), nil
}

func (c *Client) decodeFeed(body []byte) ([]event.Record, error) {
	f, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	out := make([]event.Record, 0, len(f.Items))
	for _, it := range f.Items {
		if it == nil {
			continue
		}
		out = append(out, itemRecord(it))
	}
	return out, nil
}

// itemRecord maps a feed item onto the keys the rest of the bot reads.
// Empty fields are left out so identity falls through to the next key.
func itemRecord(it *gofeed.Item) event.Record {
	rec := event.Record{}
	put := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			rec[k] = v
		}
	}
	put(event.KeyID, it.GUID)
	put(event.KeySummary, it.Title)
	put(event.KeyURL, it.Link)
	desc := it.Description
	if strings.TrimSpace(desc) == "" {
		desc = it.Content
	}
	put(event.KeyDescription, desc)

	ts := it.PublishedParsed
	if ts == nil {
		ts = it.UpdatedParsed
	}
	if ts != nil {
		rec[event.KeyStartISO] = ts.Format(time.RFC3339)
	}
	if len(it.Categories) > 0 {
		cats := make([]any, 0, len(it.Categories))
		for _, c := range it.Categories {
			cats = append(cats, c)
		}
		rec["categories"] = cats
	}
	return rec
}

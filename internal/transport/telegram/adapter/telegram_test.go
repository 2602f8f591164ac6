package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	kit "linkkibot/internal/transport"
	logx "linkkibot/pkg/logx"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("moi", 10, "")
	if len(got) != 1 || got[0] != "moi" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("ä", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	got := splitTelegramText(text, 70, "")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(got), got)
	}
	for _, c := range got {
		if n := len([]rune(c)); n > 70 {
			t.Fatalf("chunk has %d runes, limit 70", n)
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %q has dangling newline", c)
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatal("chunks do not reassemble to the original text")
	}
}

func TestSplitTelegramTextHardCut(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 9000)
	got := splitTelegramText(text, 0, "Markdown")
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if len(got[0]) != telegramTextLimit || len(got[2]) != 1000 {
		t.Fatalf("unexpected chunk sizes %d/%d/%d", len(got[0]), len(got[1]), len(got[2]))
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()
	var ra *kit.RetryAfterError
	if err := classifyError(errors.New("telegram: retry after 7 (429)")); !errors.As(err, &ra) || ra.After != 7*time.Second {
		t.Fatalf("flood error not classified: %v", err)
	}
	if err := classifyError(errors.New("telegram: chat not found (400)")); !errors.Is(err, kit.ErrPermanent) {
		t.Fatalf("400 should be permanent: %v", err)
	}
	if err := classifyError(errors.New("telegram: Internal Server Error (500)")); errors.Is(err, kit.ErrPermanent) {
		t.Fatalf("500 should be retryable: %v", err)
	}
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  string // raw JSON error response
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, body)
	n := len(f.calls)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail != "" {
		_, _ = w.Write([]byte(fail))
		return
	}
	fmt.Fprintf(w, `{"ok":true,"result":{"message_id":%d,"date":0,"chat":{"id":-100123,"type":"channel"},"text":"ok"}}`, 100+n)
}

func newTestAdapter(t *testing.T, api *fakeBotAPI) *Adapter {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	a, err := New(Config{Token: "123:abc", APIURL: srv.URL, Offline: true, Timeout: 5 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestSendTextSplitsAndAddressesUsername(t *testing.T) {
	api := &fakeBotAPI{}
	a := newTestAdapter(t, api)

	text := strings.Repeat("y", telegramTextLimit+10)
	ref, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "@kanava"}, text, &kit.SendOptions{ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if ref.MessageID != 101 || ref.ChatID != "@kanava" {
		t.Fatalf("ref = %+v", ref)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) != 2 {
		t.Fatalf("expected 2 sendMessage calls, got %d", len(api.calls))
	}
	for _, c := range api.calls {
		if fmt.Sprint(c["chat_id"]) != "@kanava" {
			t.Fatalf("chat_id = %v", c["chat_id"])
		}
		if fmt.Sprint(c["parse_mode"]) != "Markdown" {
			t.Fatalf("parse_mode = %v", c["parse_mode"])
		}
	}
}

func TestSendTextClassifiesAPIErrors(t *testing.T) {
	api := &fakeBotAPI{fail: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`}
	a := newTestAdapter(t, api)

	_, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "-100999"}, "moi", nil)
	if !errors.Is(err, kit.ErrPermanent) {
		t.Fatalf("err = %v, want ErrPermanent", err)
	}
}

func TestSendTextRejectsEmpty(t *testing.T) {
	api := &fakeBotAPI{}
	a := newTestAdapter(t, api)
	if _, err := a.SendText(context.Background(), kit.ChatTarget{}, "moi", nil); !errors.Is(err, kit.ErrPermanent) {
		t.Fatalf("empty chat id: %v", err)
	}
	if _, err := a.SendText(context.Background(), kit.ChatTarget{ChatID: "1"}, "", nil); !errors.Is(err, kit.ErrPermanent) {
		t.Fatalf("empty text: %v", err)
	}
	if len(api.calls) != 0 {
		t.Fatalf("no API calls expected, got %d", len(api.calls))
	}
}

package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	tgMessageLimit = 3500
	tgFieldLimit   = 600
)

// telegramWriter is the zerolog sink that forwards operator-relevant lines.
type telegramWriter struct{ svc *Service }

func (w *telegramWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *telegramWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil {
		return len(p), nil
	}

	s.mu.Lock()
	to := s.target
	lim := s.limiter
	minLevel := s.minLevel
	s.mu.Unlock()

	if to.ChatID == "" || s.sender == nil || lim == nil || level < minLevel {
		return len(p), nil
	}
	if !lim.Allow() {
		return len(p), nil
	}
	if msg := formatTelegramJSON(p); msg != "" {
		s.enqueue(telegramItem{to: to, msg: msg})
	}
	return len(p), nil
}

// formatTelegramJSON renders a zerolog JSON line as "[LEVEL] message" followed
// by one "- key=value" line per field, keys sorted.
func formatTelegramJSON(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(string(p), tgMessageLimit)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(m[k]), tgFieldLimit))
	}
	return truncate(b.String(), tgMessageLimit)
}

// truncate cuts s to at most maxN runes.
func truncate(s string, maxN int) string {
	if maxN <= 0 || utf8.RuneCountInString(s) <= maxN {
		return s
	}
	rs := []rune(s)
	if maxN < 10 {
		return string(rs[:maxN])
	}
	return string(rs[:maxN-3]) + "..."
}

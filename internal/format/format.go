// Package format renders event records as Telegram Markdown messages.
package format

import (
	"regexp"
	"strings"
	"time"

	"linkkibot/internal/event"
)

// DefaultDescriptionLimit is the rune budget for the description before it
// is cut and suffixed with "...".
const DefaultDescriptionLimit = 400

const (
	AnnouncementPrefix = "Uusi tapahtuma!!\n"
	EmptyDigest        = "Ei tapahtumia :("
)

// naive parses start_iso8601 as written; the wall clock in the value is what
// gets displayed, whatever its offset.
var naive = event.NewResolver(time.UTC)

// Message renders one record. Lines appear in a fixed order: title, date,
// start time (omitted at midnight), location, link and description. A record
// with none of these fields is rendered as its canonical JSON.
func Message(rec event.Record, limit int) string {
	if limit <= 0 {
		limit = DefaultDescriptionLimit
	}
	parts := make([]string, 0, 6)

	if v := rec[event.KeySummary]; event.Truthy(v) {
		parts = append(parts, "*"+event.Text(v)+"*")
	}
	if v := rec[event.KeyStartISO]; event.Truthy(v) {
		if t, ok := naive.ParseISO(event.Text(v)); ok {
			parts = append(parts, "Päivämäärä: "+t.Format("02.01.06"))
			if t.Hour() != 0 || t.Minute() != 0 {
				parts = append(parts, "Alkaa: "+t.Format("15:04"))
			}
		}
	}
	if v := rec[event.KeyLocation]; event.Truthy(v) {
		parts = append(parts, "Missä: "+location(v))
	}
	if v := rec[event.KeyURL]; event.Truthy(v) {
		parts = append(parts, "Linkki tapahtumaan: "+event.Text(v))
	}
	if v := rec[event.KeyDescription]; event.Truthy(v) {
		parts = append(parts, "Mitä: \n"+CleanHTML(truncateRunes(event.Text(v), limit)))
	}

	if len(parts) == 0 {
		b, err := event.Canonical(rec)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return strings.Join(parts, "\n")
}

// location renders either a plain place name or a {"string", "url"} object
// as a Markdown link.
func location(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		if r, isRec := v.(event.Record); isRec {
			m, ok = r, true
		}
	}
	if !ok {
		return event.Text(v)
	}
	name, url := "", ""
	if s, ok := m["string"]; ok && event.Truthy(s) {
		name = event.Text(s)
	}
	if u, ok := m["url"]; ok && event.Truthy(u) {
		url = event.Text(u)
	}
	switch {
	case name != "" && url != "":
		return "[" + name + "](" + url + ")"
	case name != "":
		return name
	default:
		return url
	}
}

func truncateRunes(s string, limit int) string {
	n := 0
	for i := range s {
		if n == limit {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

var (
	reBreak  = regexp.MustCompile(`<br>`)
	reAnchor = regexp.MustCompile(`<a\s+href="([^"]+)"[^>]*>.*?</a>`)
	reTag    = regexp.MustCompile(`<[^>]+>`)
)

// CleanHTML flattens an HTML snippet: <br> becomes a newline, links become
// their href, other tags are dropped and surrounding space trimmed.
func CleanHTML(s string) string {
	s = reBreak.ReplaceAllString(s, "\n")
	s = reAnchor.ReplaceAllString(s, "$1")
	s = reTag.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Announcement is the message for a newly seen event.
func Announcement(rec event.Record, limit int) string {
	return AnnouncementPrefix + Message(rec, limit) + "\n\n"
}

// Digest is the period summary: a bold title, then every record followed by a
// blank line, or EmptyDigest when there are none.
func Digest(title string, recs []event.Record, limit int) string {
	var b strings.Builder
	b.WriteString("*" + title + ":*\n\n")
	for _, rec := range recs {
		b.WriteString(Message(rec, limit))
		b.WriteString("\n\n")
	}
	if len(recs) == 0 {
		b.WriteString(EmptyDigest)
	}
	return b.String()
}

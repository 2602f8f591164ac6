package event

import (
	"regexp"
	"strings"
	"time"
)

// TimeSource names where an effective time came from.
type TimeSource int

const (
	SourceNone TimeSource = iota
	SourceStart
	SourceDate
	SourceReceived
)

func (s TimeSource) String() string {
	switch s {
	case SourceStart:
		return KeyStartISO
	case SourceDate:
		return KeyDate
	case SourceReceived:
		return "received_at"
	default:
		return "none"
	}
}

// Candidate is one interpretation of an event's time.
type Candidate struct {
	Source TimeSource
	At     time.Time
}

var (
	reISOPrefix = regexp.MustCompile(`^[0-9]{4}-`)
	reDMY       = regexp.MustCompile(`^[0-9]{2}/[0-9]{2}/[0-9]{4}$`)
)

// isoLayouts is what a PostgreSQL timestamptz cast accepts in practice.
// Fractional seconds are accepted by time.Parse after a seconds field even
// when the layout has none.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02T15:04:05-07",
	"2006-01-02 15:04:05-07",
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Resolver derives candidate event times from a record. Values without an
// explicit offset are read in the resolver's location.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a resolver for loc (time.Local when nil).
func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.Local
	}
	return Resolver{loc: loc}
}

func (r Resolver) Location() *time.Location {
	if r.loc == nil {
		return time.Local
	}
	return r.loc
}

// ParseISO parses an ISO-8601 style date or date-time.
func (r Resolver) ParseISO(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	loc := r.Location()
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseLooseDate interprets a human-entered date: "YYYY-..." as ISO, exactly
// "DD/MM/YYYY" as day-month-year, anything else as unusable.
func (r Resolver) ParseLooseDate(s string) (time.Time, bool) {
	switch {
	case reISOPrefix.MatchString(s):
		return r.ParseISO(s)
	case reDMY.MatchString(s):
		t, err := time.ParseInLocation("02/01/2006", s, r.Location())
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// StartTime is the start_iso8601 candidate.
func (r Resolver) StartTime(rec Record) (time.Time, bool) {
	s, ok := rec[KeyStartISO].(string)
	if !ok {
		return time.Time{}, false
	}
	return r.ParseISO(s)
}

// DateTime is the date candidate.
func (r Resolver) DateTime(rec Record) (time.Time, bool) {
	s, ok := rec[KeyDate].(string)
	if !ok {
		return time.Time{}, false
	}
	return r.ParseLooseDate(s)
}

// Candidates lists every usable time for rec in priority order. receivedAt is
// skipped when zero.
func (r Resolver) Candidates(rec Record, receivedAt time.Time) []Candidate {
	out := make([]Candidate, 0, 3)
	if t, ok := r.StartTime(rec); ok {
		out = append(out, Candidate{Source: SourceStart, At: t})
	}
	if t, ok := r.DateTime(rec); ok {
		out = append(out, Candidate{Source: SourceDate, At: t})
	}
	if !receivedAt.IsZero() {
		out = append(out, Candidate{Source: SourceReceived, At: receivedAt})
	}
	return out
}

// Effective returns the first candidate: start_iso8601, then date, then
// receivedAt.
func (r Resolver) Effective(rec Record, receivedAt time.Time) (time.Time, TimeSource) {
	c := r.Candidates(rec, receivedAt)
	if len(c) == 0 {
		return time.Time{}, SourceNone
	}
	return c[0].At, c[0].Source
}

// InWindow reports whether any candidate lies in [start, end].
func (r Resolver) InWindow(rec Record, receivedAt, start, end time.Time) bool {
	for _, c := range r.Candidates(rec, receivedAt) {
		if !c.At.Before(start) && !c.At.After(end) {
			return true
		}
	}
	return false
}

package event

import (
	"testing"
	"time"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Skipf("timezone %s unavailable: %v", name, err)
	}
	return loc
}

func TestStartTimeWithOffset(t *testing.T) {
	t.Parallel()
	r := NewResolver(time.UTC)
	got, ok := r.StartTime(Record{"start_iso8601": "2024-03-01T10:00:00+02:00"})
	if !ok {
		t.Fatal("expected start time")
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("StartTime = %v, want %v", got, want)
	}
}

func TestLooseDateDayMonthYear(t *testing.T) {
	t.Parallel()
	r := NewResolver(time.UTC)
	got, ok := r.DateTime(Record{"date": "01/03/2024"})
	if !ok {
		t.Fatal("expected date time")
	}
	if got.Month() != time.March || got.Day() != 1 || got.Year() != 2024 {
		t.Fatalf("DateTime = %v, want 1 March 2024", got)
	}
}

func TestLooseDateVariants(t *testing.T) {
	t.Parallel()
	r := NewResolver(time.UTC)
	tests := []struct {
		in     string
		wantOK bool
		want   time.Time
	}{
		{in: "2024-03-05", wantOK: true, want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{in: "2024-03-05 18:30", wantOK: true, want: time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC)},
		{in: "2024-03-05T18:30:00Z", wantOK: true, want: time.Date(2024, 3, 5, 18, 30, 0, 0, time.UTC)},
		{in: "05/03/2024", wantOK: true, want: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{in: "5/3/2024", wantOK: false},
		{in: "05/03/2024 klo 18", wantOK: false},
		{in: "2024-13-45", wantOK: false},
		{in: "ensi viikolla", wantOK: false},
		{in: "", wantOK: false},
	}
	for _, tt := range tests {
		got, ok := r.ParseLooseDate(tt.in)
		if ok != tt.wantOK {
			t.Fatalf("ParseLooseDate(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
		}
		if ok && !got.Equal(tt.want) {
			t.Fatalf("ParseLooseDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNaiveTimesUseResolverLocation(t *testing.T) {
	t.Parallel()
	hel := mustLoc(t, "Europe/Helsinki")
	r := NewResolver(hel)
	got, ok := r.ParseISO("2024-03-01T10:00:00")
	if !ok {
		t.Fatal("expected parse")
	}
	want := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ParseISO = %v, want %v", got.UTC(), want)
	}
}

func TestEffectivePriority(t *testing.T) {
	t.Parallel()
	r := NewResolver(time.UTC)
	received := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	at, src := r.Effective(Record{"start_iso8601": "2024-03-01T10:00:00Z", "date": "02/03/2024"}, received)
	if src != SourceStart || at.Day() != 1 {
		t.Fatalf("Effective = %v (%s), want start_iso8601", at, src)
	}

	at, src = r.Effective(Record{"start_iso8601": "huomenna", "date": "02/03/2024"}, received)
	if src != SourceDate || at.Day() != 2 {
		t.Fatalf("Effective = %v (%s), want date", at, src)
	}

	at, src = r.Effective(Record{"date": "joskus"}, received)
	if src != SourceReceived || !at.Equal(received) {
		t.Fatalf("Effective = %v (%s), want received_at", at, src)
	}

	if _, src = r.Effective(Record{}, time.Time{}); src != SourceNone {
		t.Fatalf("Effective source = %s, want none", src)
	}
}

func TestInWindowMatchesAnySource(t *testing.T) {
	t.Parallel()
	r := NewResolver(time.UTC)
	received := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	rec := Record{"start_iso8601": "2024-03-01T10:00:00+02:00"}

	day := func(y int, m time.Month, d int) (time.Time, time.Time) {
		start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return start, start.Add(24*time.Hour - time.Minute)
	}

	s, e := day(2024, time.March, 1)
	if !r.InWindow(rec, received, s, e) {
		t.Fatal("expected match on start_iso8601 day")
	}
	s, e = day(2024, time.March, 2)
	if r.InWindow(rec, received, s, e) {
		t.Fatal("unexpected match on following day")
	}
	s, e = day(2025, time.January, 10)
	if !r.InWindow(rec, received, s, e) {
		t.Fatal("expected match on received_at day")
	}
}

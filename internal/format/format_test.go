package format

import (
	"strings"
	"testing"

	"linkkibot/internal/event"
)

func record(t *testing.T, js string) event.Record {
	t.Helper()
	rec, err := event.Decode([]byte(js))
	if err != nil {
		t.Fatalf("decode %s: %v", js, err)
	}
	return rec
}

func TestMessageFullRecord(t *testing.T) {
	t.Parallel()
	rec := record(t, `{
		"summary": "Sitsit",
		"start_iso8601": "2024-03-01T18:30:00+02:00",
		"location": {"string": "Ylistö", "url": "https://maps.example/ylisto"},
		"url": "https://linkki.example/e/1",
		"description": "Tule <b>mukaan</b>!<br>Ilmo: <a href=\"https://ilmo.example\">täältä</a>"
	}`)
	want := strings.Join([]string{
		"*Sitsit*",
		"Päivämäärä: 01.03.24",
		"Alkaa: 18:30",
		"Missä: [Ylistö](https://maps.example/ylisto)",
		"Linkki tapahtumaan: https://linkki.example/e/1",
		"Mitä: \nTule mukaan!\nIlmo: https://ilmo.example",
	}, "\n")
	if got := Message(rec, 0); got != want {
		t.Fatalf("got\n%s\nwant\n%s", got, want)
	}
}

func TestMessageOmitsMidnightStart(t *testing.T) {
	t.Parallel()
	got := Message(record(t, `{"summary": "Vuosijuhla", "start_iso8601": "2024-12-24T00:00:00", "location": "Agora"}`), 0)
	want := "*Vuosijuhla*\nPäivämäärä: 24.12.24\nMissä: Agora"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMessageSkipsUnparsableStart(t *testing.T) {
	t.Parallel()
	got := Message(record(t, `{"summary": "Joskus", "start_iso8601": "ensi viikolla"}`), 0)
	if got != "*Joskus*" {
		t.Fatalf("got %q", got)
	}
}

func TestMessageTruncatesDescription(t *testing.T) {
	t.Parallel()
	desc := strings.Repeat("ö", 450)
	got := Message(event.Record{"description": desc}, 0)
	want := "Mitä: \n" + strings.Repeat("ö", 400) + "..."
	if got != want {
		t.Fatalf("got %d runes, want %d", len([]rune(got)), len([]rune(want)))
	}
	if got := Message(event.Record{"description": "lyhyt kuvaus"}, 5); got != "Mitä: \nlyhyt..." {
		t.Fatalf("custom limit: %q", got)
	}
}

func TestMessageFallsBackToJSON(t *testing.T) {
	t.Parallel()
	got := Message(record(t, `{"id": 7, "summary": "", "extra": "ä"}`), 0)
	if got != `{"extra": "ä", "id": 7, "summary": ""}` {
		t.Fatalf("got %q", got)
	}
}

func TestLocationVariants(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   any
		want string
	}{
		{"Agora", "Agora"},
		{map[string]any{"string": "Agora"}, "Agora"},
		{map[string]any{"url": "https://a.example"}, "https://a.example"},
		{event.Record{"string": "Agora", "url": "https://a.example"}, "[Agora](https://a.example)"},
	}
	for _, tc := range cases {
		if got := location(tc.in); got != tc.want {
			t.Fatalf("location(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanHTML(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
	}{
		{"rivi<br>toinen", "rivi\ntoinen"},
		{`<a href="https://x.example" target="_blank">linkki</a>`, "https://x.example"},
		{"  <p>kappale</p>  ", "kappale"},
		{"ei tageja", "ei tageja"},
	}
	for _, tc := range cases {
		if got := CleanHTML(tc.in); got != tc.want {
			t.Fatalf("CleanHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAnnouncementAndDigest(t *testing.T) {
	t.Parallel()
	rec := event.Record{"summary": "Saunailta"}
	if got := Announcement(rec, 0); got != "Uusi tapahtuma!!\n*Saunailta*\n\n" {
		t.Fatalf("announcement = %q", got)
	}
	if got := Digest("Tänään", nil, 0); got != "*Tänään:*\n\nEi tapahtumia :(" {
		t.Fatalf("empty digest = %q", got)
	}
	got := Digest("Tällä viikolla", []event.Record{rec, {"summary": "Sitsit"}}, 0)
	if got != "*Tällä viikolla:*\n\n*Saunailta*\n\n*Sitsit*\n\n" {
		t.Fatalf("digest = %q", got)
	}
}

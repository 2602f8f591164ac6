package app

import (
	"errors"
	"fmt"
	"strings"
)

type Period int

const (
	PeriodMonth Period = iota
	PeriodWeek
	PeriodDay
)

func (p Period) String() string {
	switch p {
	case PeriodDay:
		return "day"
	case PeriodWeek:
		return "week"
	default:
		return "month"
	}
}

// Title is the digest heading for the period.
func (p Period) Title() string {
	switch p {
	case PeriodDay:
		return "Tänään"
	case PeriodWeek:
		return "Tällä viikolla"
	default:
		return "Tässä kuussa"
	}
}

// Modes is what one invocation does.
type Modes struct {
	Poll   bool
	Post   bool
	Period Period
	DryRun bool
}

// ParseModes reads mode words. Items may themselves be comma separated.
// post_events implies a poll first. When several periods are named the
// shortest wins; none means month.
func ParseModes(words []string) (Modes, error) {
	var (
		m    Modes
		seen = map[string]bool{}
	)
	for _, w := range words {
		for _, part := range strings.Split(w, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			switch part {
			case "poll_events", "post_events", "day", "week", "month":
				seen[part] = true
			case "dry-run", "dry_run", "dryrun":
				m.DryRun = true
			default:
				return Modes{}, fmt.Errorf("unknown mode %q (poll_events|post_events|day|week|month|dry-run)", part)
			}
		}
	}
	m.Post = seen["post_events"]
	m.Poll = m.Post || seen["poll_events"]
	if !m.Poll {
		return Modes{}, errors.New("modes must include poll_events or post_events")
	}
	switch {
	case seen["day"]:
		m.Period = PeriodDay
	case seen["week"]:
		m.Period = PeriodWeek
	default:
		m.Period = PeriodMonth
	}
	return m, nil
}

func (m Modes) String() string {
	parts := make([]string, 0, 3)
	if m.Post {
		parts = append(parts, "post_events", m.Period.String())
	} else if m.Poll {
		parts = append(parts, "poll_events")
	}
	if m.DryRun {
		parts = append(parts, "dry-run")
	}
	return strings.Join(parts, ",")
}

package app

import "time"

// Window is the digest range for p: from now to the end of the current day,
// week or month, in now's location.
//
// The day ends at 23:59:59 exactly; week and month end at the last
// nanosecond of their final day.
func Window(now time.Time, p Period, weekStart time.Weekday) (start, end time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	switch p {
	case PeriodDay:
		return now, time.Date(y, m, d, 23, 59, 59, 0, loc)
	case PeriodWeek:
		return now, EndOfWeek(now, weekStart)
	default:
		return now, EndOfMonth(now)
	}
}

// EndOfWeek is the last instant of the week containing t, for weeks starting
// on weekStart.
func EndOfWeek(t time.Time, weekStart time.Weekday) time.Time {
	last := (weekStart + 6) % 7
	days := (int(last) - int(t.Weekday()) + 7) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d+days, 23, 59, 59, 999999999, t.Location())
}

// EndOfMonth is the last instant of t's month.
func EndOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 23, 59, 59, 999999999, t.Location())
}

// Package sessions gates live bar processing on the FX trading week.
// Spot FX trades continuously from the Sydney open on Sunday evening
// until the New York close on Friday. The boundary is pinned at
// 22:00 UTC (the New York 17:00 close in winter); DST drift is not
// worth modelling for a stale-bar gate.
package sessions

import (
	"fmt"
	"time"
)

const (
	// OpenHourUTC is the Sunday session open (22:00 UTC).
	OpenHourUTC = 22
	// CloseHourUTC is the Friday session close (22:00 UTC).
	CloseHourUTC = 22
)

// fxHolidays are the fixed-date days the interbank market shuts market-wide.
var fxHolidays = []struct {
	month time.Month
	day   int
}{
	{time.January, 1},   // New Year's Day
	{time.December, 25}, // Christmas
}

// IsHoliday returns true if the date (UTC) is an FX market holiday.
func IsHoliday(t time.Time) bool {
	utc := t.UTC()
	for _, h := range fxHolidays {
		if utc.Month() == h.month && utc.Day() == h.day {
			return true
		}
	}
	return false
}

// IsMarketOpen returns true if t falls inside the FX trading week
// (Sunday 22:00 UTC through Friday 22:00 UTC, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	utc := t.UTC()
	switch utc.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		if utc.Hour() < OpenHourUTC {
			return false
		}
	case time.Friday:
		if utc.Hour() >= CloseHourUTC {
			return false
		}
	}
	return !IsHoliday(utc)
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd >= time.Monday && wd <= time.Friday && !IsHoliday(t)
}

// NextOpen returns the next time the market gate opens. If the market
// is open at t, returns t itself.
func NextOpen(t time.Time) time.Time {
	utc := t.UTC()
	if IsMarketOpen(utc) {
		return utc
	}
	// Scan forward hour by hour until the gate opens; the week gate
	// plus a two-date holiday list never keeps it shut longer than a
	// weekend.
	probe := utc.Truncate(time.Hour)
	for i := 0; i < 24*7; i++ {
		probe = probe.Add(time.Hour)
		if IsMarketOpen(probe) {
			return probe
		}
	}
	return utc
}

// WeekClose returns the closing Friday 22:00 UTC of the week t falls
// in (the upcoming one if t is already past this week's close).
func WeekClose(t time.Time) time.Time {
	utc := t.UTC()
	daysToFriday := (int(time.Friday) - int(utc.Weekday()) + 7) % 7
	cl := time.Date(utc.Year(), utc.Month(), utc.Day(), CloseHourUTC, 0, 0, 0, time.UTC).
		AddDate(0, 0, daysToFriday)
	if !cl.After(utc) {
		cl = cl.AddDate(0, 0, 7)
	}
	return cl
}

// TimeUntilOpen returns the duration until the next market open.
// Returns 0 if the market is open.
func TimeUntilOpen(t time.Time) time.Duration {
	d := NextOpen(t).Sub(t.UTC())
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open — week closes in %s", fmtDur(WeekClose(t).Sub(t.UTC())))
	}
	next := NextOpen(t)
	return fmt.Sprintf("Market Closed — opens %s %s UTC (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t.UTC())))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

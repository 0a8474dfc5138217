// Package timeutil provides timezone-aware calendar windows ("today",
// "this week") for progression statistics. Users are located in Almaty, so
// that zone is the default when no other is configured.
package timeutil

import (
	"fmt"
	"time"
)

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Kazakhstan abolished DST in 2005, so this is constant year-round.
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// LoadLocation resolves a IANA zone name. "Asia/Almaty" and the empty string
// resolve to AlmatyTZ without consulting tzdata.
func LoadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Asia/Almaty":
		return AlmatyTZ, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timeutil: load location %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns Monday 00:00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)), loc)
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Today returns the calendar day containing now.
func Today(now time.Time, loc *time.Location) Window {
	from := StartOfDay(now, loc)
	return Window{From: from, To: from.AddDate(0, 0, 1)}
}

// ThisWeek returns the Monday-based calendar week containing now.
func ThisWeek(now time.Time, loc *time.Location) Window {
	from := StartOfWeek(now, loc)
	return Window{From: from, To: from.AddDate(0, 0, 7)}
}

// IsSameDay checks if two times are on the same calendar day in loc.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	a1, a2 := t1.In(loc), t2.In(loc)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// ISOWeekKey formats t's ISO week as "2026-W07".
func ISOWeekKey(t time.Time, loc *time.Location) string {
	year, week := t.In(loc).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

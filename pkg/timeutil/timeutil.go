// Package timeutil provides calendar-day helpers bound to one reference timezone.
// Streaks and goal deadlines are evaluated in calendar days, so every component
// that asks "what day is it" goes through a Clock configured with the same zone.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DefaultZone is used when no timezone is configured.
var DefaultZone = time.UTC

// Common date/time formats.
const (
	FormatDate     = "2006-01-02"
	FormatDateTime = "2006-01-02 15:04:05"
)

// Clock returns the current time in a fixed reference zone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// SystemClock reads the wall clock.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock creates a clock for the given zone (nil means DefaultZone).
func NewSystemClock(loc *time.Location) *SystemClock {
	if loc == nil {
		loc = DefaultZone
	}
	return &SystemClock{loc: loc}
}

// Now returns the current time in the clock zone.
func (c *SystemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock zone.
func (c *SystemClock) Location() *time.Location {
	return c.loc
}

// FixedClock always returns the same instant. Used in tests and replays.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.T
}

// Location returns the zone of the fixed instant.
func (c FixedClock) Location() *time.Location {
	return c.T.Location()
}

// LoadZone resolves an IANA zone name. Empty string resolves to DefaultZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return DefaultZone, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// DateIn re-anchors a date-only value at midnight of the same Y/M/D in loc.
// Databases return DATE columns as UTC midnight, which converted with
// StartOfDay would land on the previous day in zones behind UTC.
func DateIn(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = DefaultZone
	}
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}

// Today returns the start of the current calendar day of the clock.
func Today(c Clock) time.Time {
	return StartOfDay(c.Now(), c.Location())
}

// IsConsecutiveDay checks if t2 is the calendar day right after t1 in loc.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return DaysBetween(t1, t2, loc) == 1
}

// DaysBetween returns the signed number of calendar days from t1 to t2 in loc.
// The calculation works on dates, not durations, so DST shifts do not skew it.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	d1 := StartOfDay(t1, loc)
	d2 := StartOfDay(t2, loc)
	u1 := time.Date(d1.Year(), d1.Month(), d1.Day(), 0, 0, 0, 0, time.UTC)
	u2 := time.Date(d2.Year(), d2.Month(), d2.Day(), 0, 0, 0, 0, time.UTC)
	return int(u2.Sub(u1).Hours() / 24)
}

// FormatDateStr formats t as YYYY-MM-DD in loc.
func FormatDateStr(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = DefaultZone
	}
	return t.In(loc).Format(FormatDate)
}

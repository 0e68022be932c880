// Package period computes the calendar and rolling windows the alert engine
// aggregates over. All windows are half-open: Start is included, End is not.
package period

import (
	"fmt"
	"strings"
	"time"
)

type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Calendar fixes the location and first weekday every caller buckets with.
type Calendar struct {
	Location  *time.Location
	WeekStart time.Weekday
}

// NewCalendar returns a calendar; a nil location means UTC.
func NewCalendar(loc *time.Location, weekStart time.Weekday) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Location: loc, WeekStart: weekStart}
}

// ParseWeekStart accepts "monday" or "sunday".
func ParseWeekStart(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monday", "mon":
		return time.Monday, nil
	case "sunday", "sun":
		return time.Sunday, nil
	}
	return time.Monday, fmt.Errorf("invalid week start %q", s)
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

func (c Calendar) midnight(t time.Time) time.Time {
	t = t.In(c.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc())
}

// Week is the week containing now.
func (c Calendar) Week(now time.Time) Window {
	day := c.midnight(now)
	offset := (int(day.Weekday()) - int(c.WeekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func (c Calendar) PreviousWeek(now time.Time) Window {
	w := c.Week(now)
	return Window{Start: w.Start.AddDate(0, 0, -7), End: w.Start}
}

// Month is the calendar month containing now.
func (c Calendar) Month(now time.Time) Window {
	t := now.In(c.loc())
	return c.MonthOf(t.Year(), t.Month())
}

func (c Calendar) PreviousMonth(now time.Time) Window {
	m := c.Month(now)
	return Window{Start: m.Start.AddDate(0, -1, 0), End: m.Start}
}

// MonthOf returns the window of the given calendar month.
func (c Calendar) MonthOf(year int, month time.Month) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, c.loc())
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

func (c Calendar) Year(now time.Time) Window {
	t := now.In(c.loc())
	start := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, c.loc())
	return Window{Start: start, End: start.AddDate(1, 0, 0)}
}

// Bucket returns the ledger bucket (year, month) t falls in.
func (c Calendar) Bucket(t time.Time) (int, int) {
	t = t.In(c.loc())
	return t.Year(), int(t.Month())
}

// TrailingHours is [now-n hours, now).
func TrailingHours(now time.Time, n int) Window {
	return Trailing(now, time.Duration(n)*time.Hour)
}

// Trailing is [now-d, now).
func Trailing(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// TrailingDays is [now-n days, now), stepping by calendar days.
func TrailingDays(now time.Time, n int) Window {
	return Window{Start: now.AddDate(0, 0, -n), End: now}
}

// TrailingMonths is [anchor-n calendar months, anchor).
func TrailingMonths(anchor time.Time, n int) Window {
	return Window{Start: anchor.AddDate(0, -n, 0), End: anchor}
}

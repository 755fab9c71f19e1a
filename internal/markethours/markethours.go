// Package markethours is the trading calendar: exchange timezone, session
// open/close clock times, weekends and holidays.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the exchange zone used when none is configured.
const DefaultTimezone = "Asia/Seoul"

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hour   int
	Minute int
	set    bool
}

// ParseClock parses "HH:MM". An empty string yields an unset ClockTime.
func ParseClock(s string) (ClockTime, error) {
	if s == "" {
		return ClockTime{}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute(), set: true}, nil
}

// IsSet reports whether the clock time was configured.
func (c ClockTime) IsSet() bool { return c.set }

func (c ClockTime) minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string {
	if !c.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Calendar answers session questions in one exchange timezone.
// A zero Open or Close disables the corresponding intraday rule.
type Calendar struct {
	loc      *time.Location
	open     ClockTime
	close    ClockTime
	holidays map[string]bool
}

// NewCalendar loads tz ("" selects DefaultTimezone) and parses the optional
// "HH:MM" session open and close times.
func NewCalendar(tz, openAt, closeAt string) (*Calendar, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	o, err := ParseClock(openAt)
	if err != nil {
		return nil, err
	}
	c, err := ParseClock(closeAt)
	if err != nil {
		return nil, err
	}
	if o.set && c.set && o.minutes() >= c.minutes() {
		return nil, fmt.Errorf("session open %s must be before close %s", o, c)
	}
	return &Calendar{loc: loc, open: o, close: c, holidays: make(map[string]bool)}, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// Open returns the configured session open.
func (c *Calendar) Open() ClockTime { return c.open }

// Close returns the configured session close.
func (c *Calendar) Close() ClockTime { return c.close }

// NewSession reports whether cur falls on a later calendar day than prev in
// the exchange timezone. A zero prev always starts a session.
func (c *Calendar) NewSession(prev, cur time.Time) bool {
	if prev.IsZero() {
		return true
	}
	return dateKey(prev.In(c.loc)) != dateKey(cur.In(c.loc))
}

// BeforeOpen reports whether t is earlier than the session open on its day.
func (c *Calendar) BeforeOpen(t time.Time) bool {
	if !c.open.set {
		return false
	}
	return clockOf(t.In(c.loc)) < c.open.minutes()
}

// AfterClose reports whether t is at or after the session close on its day.
func (c *Calendar) AfterClose(t time.Time) bool {
	if !c.close.set {
		return false
	}
	return clockOf(t.In(c.loc)) >= c.close.minutes()
}

// IsWeekday returns true if t is Mon–Fri in the exchange timezone.
func (c *Calendar) IsWeekday(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return c.IsWeekday(t) && !c.IsHoliday(t)
}

// SessionClose returns the close on t's day, or the end of that day when no
// close is configured.
func (c *Calendar) SessionClose(t time.Time) time.Time {
	lt := t.In(c.loc)
	if !c.close.set {
		return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, c.loc)
	}
	return time.Date(lt.Year(), lt.Month(), lt.Day(), c.close.Hour, c.close.Minute, 0, 0, c.loc)
}

func clockOf(t time.Time) int { return t.Hour()*60 + t.Minute() }

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

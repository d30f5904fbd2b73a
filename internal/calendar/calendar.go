// Package calendar provides the market clock: NYSE holidays, market
// days and intraday session boundaries, all pinned to market time.
package calendar

import (
	"fmt"
	"time"

	"github.com/ternarybob/rangealert/internal/models"
)

// DefaultTimezone is the exchange's local timezone.
const DefaultTimezone = "America/New_York"

// MarketCalendar answers market-day and session questions for one
// timezone. The zero value is not usable; construct with New.
type MarketCalendar struct {
	loc *time.Location
}

// New creates a calendar pinned to the given timezone.
func New(loc *time.Location) *MarketCalendar {
	if loc == nil {
		loc = time.UTC
	}
	return &MarketCalendar{loc: loc}
}

// NewDefault creates a calendar in the exchange's local timezone.
func NewDefault() (*MarketCalendar, error) {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		return nil, err
	}
	return New(loc), nil
}

// Location returns the calendar's timezone.
func (c *MarketCalendar) Location() *time.Location {
	return c.loc
}

// Now returns the current time in market time.
func (c *MarketCalendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// TradingDay formats t as the YYYY-MM-DD trading-day label.
func (c *MarketCalendar) TradingDay(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// IsMarketDay reports whether t falls on a regular NYSE trading day.
func (c *MarketCalendar) IsMarketDay(t time.Time) bool {
	t = t.In(c.loc)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// IsHoliday reports whether t falls on an NYSE full-closure holiday,
// including weekend observation shifts.
func (c *MarketCalendar) IsHoliday(t time.Time) bool {
	t = t.In(c.loc)
	d := dateOnly(t)
	for _, h := range c.Holidays(t.Year()) {
		if h.Equal(d) {
			return true
		}
	}
	return false
}

// Holidays returns the observed full-closure dates for a year.
func (c *MarketCalendar) Holidays(year int) []time.Time {
	holidays := []time.Time{
		// Fixed dates shift to the nearest weekday when they fall on a
		// weekend (Sat observed Fri, Sun observed Mon).
		c.observed(year, time.January, 1),
		c.observed(year, time.June, 19),
		c.observed(year, time.July, 4),
		c.observed(year, time.December, 25),

		// Floating holidays.
		c.nthWeekday(year, time.January, time.Monday, 3),  // MLK Day
		c.nthWeekday(year, time.February, time.Monday, 3), // Presidents Day
		c.goodFriday(year),
		c.lastWeekday(year, time.May, time.Monday),          // Memorial Day
		c.nthWeekday(year, time.September, time.Monday, 1),  // Labor Day
		c.nthWeekday(year, time.November, time.Thursday, 4), // Thanksgiving
	}
	return holidays
}

// observed returns a fixed-date holiday shifted off the weekend.
func (c *MarketCalendar) observed(year int, month time.Month, day int) time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, c.loc)
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	default:
		return d
	}
}

// nthWeekday returns the nth given weekday of a month.
func (c *MarketCalendar) nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, c.loc)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the last given weekday of a month.
func (c *MarketCalendar) lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, c.loc).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// goodFriday returns two days before Easter Sunday, computed with the
// anonymous Gregorian algorithm.
func (c *MarketCalendar) goodFriday(year int) time.Time {
	a := year % 19
	b := year / 100
	cc := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := cc / 4
	k := cc % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	easter := time.Date(year, time.Month(month), day, 0, 0, 0, 0, c.loc)
	return easter.AddDate(0, 0, -2)
}

// NextMarketDay returns the first market day strictly after t.
func (c *MarketCalendar) NextMarketDay(t time.Time) time.Time {
	d := dateOnlyIn(t, c.loc).AddDate(0, 0, 1)
	for !c.IsMarketDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// IsFirstMarketDayOfWeek reports whether t is the first trading day of
// its ISO week. Weekly newsletters publish on this day.
func (c *MarketCalendar) IsFirstMarketDayOfWeek(t time.Time) bool {
	t = t.In(c.loc)
	if !c.IsMarketDay(t) {
		return false
	}
	year, week := t.ISOWeek()
	d := dateOnly(t).AddDate(0, 0, -1)
	for {
		dy, dw := d.ISOWeek()
		if dy != year || dw != week {
			return true
		}
		if c.IsMarketDay(d) {
			return false
		}
		d = d.AddDate(0, 0, -1)
	}
}

// Intraday phase boundaries, in minutes from midnight market time.
const (
	openMinute  = 9*60 + 30
	midMinute   = 12 * 60
	pmMinute    = 14*60 + 30
	closeMinute = 16*60 + 30
)

// TodaySession classifies t into the intraday phase: PRE before the
// open, AM until noon, MID until the afternoon evaluation fires, PM
// until the extended close, POST after.
func (c *MarketCalendar) TodaySession(t time.Time) models.Session {
	t = t.In(c.loc)
	m := t.Hour()*60 + t.Minute()
	switch {
	case m < openMinute:
		return models.SessionPre
	case m < midMinute:
		return models.SessionAM
	case m < pmMinute:
		return models.SessionMid
	case m < closeMinute:
		return models.SessionPM
	default:
		return models.SessionPost
	}
}

// DetectSession maps t onto an evaluation session for manual runs:
// AM in [09:30, 12:00), PM in [12:00, 16:30). Outside those windows
// the caller has to name the session explicitly.
func (c *MarketCalendar) DetectSession(t time.Time) (models.Session, error) {
	switch c.TodaySession(t) {
	case models.SessionAM:
		return models.SessionAM, nil
	case models.SessionMid, models.SessionPM:
		return models.SessionPM, nil
	default:
		return "", fmt.Errorf("%s is outside the evaluation windows", t.In(c.loc).Format("15:04"))
	}
}

// NextFire returns the first market-day instant at the given HH:MM
// wall-clock time strictly after t.
func (c *MarketCalendar) NextFire(t time.Time, at string) (time.Time, error) {
	fireAt, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid fire time %q: %w", at, err)
	}
	t = t.In(c.loc)
	candidate := time.Date(t.Year(), t.Month(), t.Day(), fireAt.Hour(), fireAt.Minute(), 0, 0, c.loc)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for !c.IsMarketDay(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dateOnlyIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

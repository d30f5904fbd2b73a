package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/rangealert/internal/models"
)

func newTestCalendar(t *testing.T) *MarketCalendar {
	t.Helper()
	cal, err := NewDefault()
	require.NoError(t, err)
	return cal
}

func date(t *testing.T, cal *MarketCalendar, y int, m time.Month, d int) time.Time {
	t.Helper()
	return time.Date(y, m, d, 10, 0, 0, 0, cal.Location())
}

func TestIsMarketDay(t *testing.T) {
	cal := newTestCalendar(t)

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"regular weekday", date(t, cal, 2026, time.August, 26), true},
		{"saturday", date(t, cal, 2026, time.August, 29), false},
		{"sunday", date(t, cal, 2026, time.August, 30), false},
		{"new year", date(t, cal, 2026, time.January, 1), false},
		{"christmas", date(t, cal, 2026, time.December, 25), false},
		{"juneteenth", date(t, cal, 2026, time.June, 19), false},
		{"day after christmas", date(t, cal, 2026, time.December, 28), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsMarketDay(tt.t))
		})
	}
}

func TestHolidayObservation(t *testing.T) {
	cal := newTestCalendar(t)

	// July 4 2026 is a Saturday; observed Friday July 3.
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.July, 3)))
	assert.False(t, cal.IsMarketDay(date(t, cal, 2026, time.July, 3)))
	// The Monday after is a regular trading day.
	assert.True(t, cal.IsMarketDay(date(t, cal, 2026, time.July, 6)))

	// July 4 2021 was a Sunday; observed Monday July 5.
	assert.True(t, cal.IsHoliday(date(t, cal, 2021, time.July, 5)))
}

func TestFloatingHolidays(t *testing.T) {
	cal := newTestCalendar(t)

	// 2026: MLK Jan 19, Presidents Feb 16, Memorial May 25,
	// Labor Sep 7, Thanksgiving Nov 26.
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.January, 19)))
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.February, 16)))
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.May, 25)))
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.September, 7)))
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.November, 26)))
}

func TestGoodFriday(t *testing.T) {
	cal := newTestCalendar(t)

	// Easter 2026 is April 5, so Good Friday is April 3.
	assert.True(t, cal.IsHoliday(date(t, cal, 2026, time.April, 3)))
	// Easter 2025 was April 20, Good Friday April 18.
	assert.True(t, cal.IsHoliday(date(t, cal, 2025, time.April, 18)))
	// Easter 2024 was March 31, Good Friday March 29.
	assert.True(t, cal.IsHoliday(date(t, cal, 2024, time.March, 29)))
}

func TestIsFirstMarketDayOfWeek(t *testing.T) {
	cal := newTestCalendar(t)

	// Regular week: Monday is the first market day.
	assert.True(t, cal.IsFirstMarketDayOfWeek(date(t, cal, 2026, time.August, 24)))
	assert.False(t, cal.IsFirstMarketDayOfWeek(date(t, cal, 2026, time.August, 25)))

	// Labor Day week 2026: Monday Sep 7 is closed, Tuesday Sep 8 is the
	// first market day.
	assert.False(t, cal.IsFirstMarketDayOfWeek(date(t, cal, 2026, time.September, 7)))
	assert.True(t, cal.IsFirstMarketDayOfWeek(date(t, cal, 2026, time.September, 8)))

	// Weekend is never a first market day.
	assert.False(t, cal.IsFirstMarketDayOfWeek(date(t, cal, 2026, time.August, 23)))
}

func TestNextMarketDay(t *testing.T) {
	cal := newTestCalendar(t)

	// Friday -> Monday.
	next := cal.NextMarketDay(date(t, cal, 2026, time.August, 21))
	assert.Equal(t, "2026-08-24", cal.TradingDay(next))

	// Friday before Labor Day weekend -> Tuesday.
	next = cal.NextMarketDay(date(t, cal, 2026, time.September, 4))
	assert.Equal(t, "2026-09-08", cal.TradingDay(next))
}

func TestTodaySession(t *testing.T) {
	cal := newTestCalendar(t)

	clock := func(hour, min int) time.Time {
		return time.Date(2026, time.August, 26, hour, min, 0, 0, cal.Location())
	}

	tests := []struct {
		name string
		t    time.Time
		want models.Session
	}{
		{"before open", clock(9, 29), models.SessionPre},
		{"at open", clock(9, 30), models.SessionAM},
		{"morning run", clock(10, 45), models.SessionAM},
		{"noon", clock(12, 0), models.SessionMid},
		{"afternoon run", clock(14, 30), models.SessionPM},
		{"extended close", clock(16, 30), models.SessionPost},
		{"overnight", clock(3, 0), models.SessionPre},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.TodaySession(tt.t))
		})
	}
}

func TestDetectSession(t *testing.T) {
	cal := newTestCalendar(t)

	clock := func(hour, min int) time.Time {
		return time.Date(2026, time.August, 26, hour, min, 0, 0, cal.Location())
	}

	session, err := cal.DetectSession(clock(10, 45))
	require.NoError(t, err)
	assert.Equal(t, models.SessionAM, session)

	session, err = cal.DetectSession(clock(14, 30))
	require.NoError(t, err)
	assert.Equal(t, models.SessionPM, session)

	// Noon belongs to the PM evaluation window.
	session, err = cal.DetectSession(clock(12, 0))
	require.NoError(t, err)
	assert.Equal(t, models.SessionPM, session)

	// Outside the windows the caller must choose.
	_, err = cal.DetectSession(clock(3, 0))
	assert.Error(t, err)
	_, err = cal.DetectSession(clock(17, 0))
	assert.Error(t, err)
}

func TestNextFire(t *testing.T) {
	cal := newTestCalendar(t)

	// Before today's fire time: fires today.
	at := time.Date(2026, time.August, 26, 8, 0, 0, 0, cal.Location())
	next, err := cal.NextFire(at, "10:45")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.August, 26, 10, 45, 0, 0, cal.Location()), next)

	// At or past the fire time: rolls to the next market day.
	at = time.Date(2026, time.August, 26, 10, 45, 0, 0, cal.Location())
	next, err = cal.NextFire(at, "10:45")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-27", cal.TradingDay(next))

	// Friday evening skips the weekend.
	at = time.Date(2026, time.August, 28, 16, 0, 0, 0, cal.Location())
	next, err = cal.NextFire(at, "09:00")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-31", cal.TradingDay(next))

	_, err = cal.NextFire(at, "not-a-time")
	assert.Error(t, err)
}

func TestTradingDay(t *testing.T) {
	cal := newTestCalendar(t)

	// A late-evening UTC timestamp is still the same market day.
	utc := time.Date(2026, time.August, 26, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-26", cal.TradingDay(utc))

	// Past midnight UTC but still the prior evening in market time.
	utc = time.Date(2026, time.August, 27, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-26", cal.TradingDay(utc))
}

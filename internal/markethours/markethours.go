// Package markethours answers "is the market open" questions for US
// Regular Trading Hours: 09:30-16:00 America/New_York, Monday-Friday,
// excluding exchange holidays. The close is exclusive for entries; the
// EOD flatten window covers the final two minutes of the session.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Eastern is the US market timezone. It is initialized as a package
// variable (not in an init func) so it is set before init funcs in
// other files of this package run.
var Eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(fmt.Sprintf("markethours: load timezone: %v", err))
	}
	return loc
}

// RTH boundaries in market time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	// EOD flatten starts this many minutes before the close.
	FlattenMinutesBeforeClose = 2
)

// IsMarketOpen reports whether t falls inside RTH on a trading day.
// The interval is half-open: 16:00:00 itself is closed.
func IsMarketOpen(t time.Time) bool {
	local := t.In(Eastern)
	if !IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// InEntryWindow reports whether new entries are allowed at t. Same as
// IsMarketOpen; named separately because exits are allowed past it.
func InEntryWindow(t time.Time) bool {
	return IsMarketOpen(t)
}

// InFlattenWindow reports whether t is in the EOD flatten window
// [15:58, 16:00]. Unlike the entry window, the close boundary is
// inclusive so a 16:00:00 exit still goes out.
func InFlattenWindow(t time.Time) bool {
	local := t.In(Eastern)
	if !IsTradingDay(local) {
		return false
	}
	start := time.Date(local.Year(), local.Month(), local.Day(),
		CloseHour, CloseMinute-FlattenMinutesBeforeClose, 0, 0, Eastern)
	end := time.Date(local.Year(), local.Month(), local.Day(),
		CloseHour, CloseMinute, 0, 0, Eastern)
	return !local.Before(start) && !local.After(end)
}

// IsWeekday reports whether t is Monday through Friday in market time.
func IsWeekday(t time.Time) bool {
	wd := t.In(Eastern).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay reports whether t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	local := t.In(Eastern)
	return IsWeekday(local) && !IsHoliday(local)
}

// NextOpen returns the next 09:30 market open at or after t.
func NextOpen(t time.Time) time.Time {
	local := t.In(Eastern)

	todayOpen := time.Date(local.Year(), local.Month(), local.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
	if local.Before(todayOpen) && IsTradingDay(local) {
		return todayOpen
	}

	d := local.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(local.Year(), local.Month(), local.Day()+1, OpenHour, OpenMinute, 0, 0, Eastern)
}

// TodayClose returns the 16:00 close for t's market day.
func TodayClose(t time.Time) time.Time {
	local := t.In(Eastern)
	return time.Date(local.Year(), local.Month(), local.Day(), CloseHour, CloseMinute, 0, 0, Eastern)
}

// TimeUntilClose returns the duration until today's close, or zero if
// the market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(Eastern))
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.In(Eastern))
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	local := next.In(Eastern)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

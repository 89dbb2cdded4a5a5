// Package markethours classifies instants against NSE trading sessions.
// All boundaries are evaluated in Indian Standard Time.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session boundaries in IST.
const (
	PreOpenHour   = 9
	PreOpenMinute = 0
	OpenHour      = 9
	OpenMinute    = 15
	CloseHour     = 15
	CloseMinute   = 30
	PostCloseHour = 16
)

// Status labels a market session state at one instant.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusPreOpen    Status = "PRE-OPEN"
	StatusPostMarket Status = "POST-MARKET CLOSED"
	StatusWeekend    Status = "CLOSED (WEEKEND)"
	StatusHoliday    Status = "CLOSED (HOLIDAY)"
	StatusAfterHours Status = "CLOSED (AFTER-HOURS)"
)

// StatusAt classifies t into a session state.
func StatusAt(t time.Time) Status {
	ist := t.In(IST)
	if wd := ist.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return StatusWeekend
	}
	if IsHoliday(ist) {
		return StatusHoliday
	}
	hm := ist.Hour()*60 + ist.Minute()
	switch {
	case hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute:
		return StatusOpen
	case hm >= PreOpenHour*60+PreOpenMinute && hm < OpenHour*60+OpenMinute:
		return StatusPreOpen
	case hm >= CloseHour*60+CloseMinute && hm < PostCloseHour*60:
		return StatusPostMarket
	default:
		return StatusAfterHours
	}
}

// IsMarketOpen returns true if t falls within NSE trading hours
// (9:15 AM to 3:30 PM IST, Mon-Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	return StatusAt(t) == StatusOpen
}

// ShouldStreamData reports whether the live tick stream should be running:
// during the open session and the pre-open window.
func ShouldStreamData(t time.Time) bool {
	s := StatusAt(t)
	return s == StatusOpen || s == StatusPreOpen
}

// IsWeekday returns true if t is Mon-Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(IST).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	return IsWeekday(ist) && !IsHoliday(ist)
}

// NextOpen returns the next market open (9:15 AM IST on the next trading
// day). If t is before today's open on a trading day, returns today's open.
// The forward walk is bounded at 10 days.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)

	todayOpen := time.Date(ist.Year(), ist.Month(), ist.Day(), OpenHour, OpenMinute, 0, 0, IST)
	if ist.Before(todayOpen) && IsTradingDay(ist) {
		return todayOpen
	}

	d := ist.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ {
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, IST)
		}
		d = d.AddDate(0, 0, 1)
	}
	// Fallback: next day
	return time.Date(ist.Year(), ist.Month(), ist.Day()+1, OpenHour, OpenMinute, 0, 0, IST)
}

// TodayClose returns today's market close time (3:30 PM IST).
func TodayClose(t time.Time) time.Time {
	ist := t.In(IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day(), CloseHour, CloseMinute, 0, 0, IST)
}

// TimeUntilClose returns the duration until today's close, or 0 if the
// market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(IST))
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next market open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.In(IST))
}

// StatusString returns a human-readable market status line for dashboards.
func StatusString(t time.Time) string {
	st := StatusAt(t)
	if st == StatusOpen {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	ist := next.In(IST)
	return fmt.Sprintf("%s, opens %s %s (%s)",
		st, ist.Weekday().String()[:3], ist.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

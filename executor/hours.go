package executor

import (
	"fmt"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADING WINDOW GUARD
// ═══════════════════════════════════════════════════════════════════════════════
//
// Checked once per ExecuteApproved call, not per trade. Regular NYSE session,
// optionally shaved by the first/last N minutes where spreads are worst.
//
// ═══════════════════════════════════════════════════════════════════════════════

var marketTZ = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// checkTradingWindow returns a non-empty reason when trading is not allowed
// at the given instant.
func checkTradingWindow(now time.Time, avoidFirst, avoidLast int) string {
	local := now.In(marketTZ)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return "market closed: weekend"
	}

	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, marketTZ)
	close := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, marketTZ)

	if local.Before(open) || !local.Before(close) {
		return "market closed: outside regular session 09:30-16:00 ET"
	}

	windowStart := open.Add(time.Duration(avoidFirst) * time.Minute)
	windowEnd := close.Add(-time.Duration(avoidLast) * time.Minute)

	if local.Before(windowStart) {
		return fmt.Sprintf("avoiding first %d minutes of session", avoidFirst)
	}
	if !local.Before(windowEnd) {
		return fmt.Sprintf("avoiding last %d minutes of session", avoidLast)
	}

	return ""
}

package jobs

import (
	"time"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/report"
	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/stats"
)

// Period returns the report window for kind as seen at now in loc. Weekly reports
// cover the previous Monday through Sunday; monthly reports the previous calendar
// month. End is the last nanosecond of the window.
func Period(kind report.Kind, now time.Time, loc *time.Location) stats.Period {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start, next time.Time
	switch kind {
	case report.KindMonthly:
		next = time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		start = next.AddDate(0, -1, 0)
	default:
		// Monday is day 0
		offset := (int(midnight.Weekday()) + 6) % 7
		next = midnight.AddDate(0, 0, -offset)
		start = next.AddDate(0, 0, -7)
	}
	return stats.Period{Start: start, End: next.Add(-time.Nanosecond)}
}

package expenses

import (
	"fmt"
	"time"
)

// Period presets accepted by the expenses endpoints.
const (
	PeriodDay    = "day"
	PeriodWeek   = "week"
	PeriodMonth  = "month"
	Period3Month = "3month"
	PeriodYear   = "year"
)

// PeriodRange resolves either an explicit [rangeStart, rangeEnd] date pair
// (YYYY-MM-DD, interpreted in loc) or a named preset into unix-millisecond
// bounds covering whole days.
func PeriodRange(loc *time.Location, rangeStart, rangeEnd, period string, now time.Time) (int64, int64, error) {
	if rangeStart != "" && rangeEnd != "" {
		start, err := time.ParseInLocation("2006-01-02", rangeStart, loc)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range start %q: %w", rangeStart, err)
		}
		end, err := time.ParseInLocation("2006-01-02", rangeEnd, loc)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid range end %q: %w", rangeEnd, err)
		}
		return startOfDay(start).UnixMilli(), endOfDay(end).UnixMilli(), nil
	}

	if period == "" {
		period = PeriodMonth
	}
	now = now.In(loc)

	var start, end time.Time
	switch period {
	case PeriodDay:
		start, end = startOfDay(now), endOfDay(now)
	case PeriodWeek:
		// Weeks start on Monday.
		offset := (int(now.Weekday()) + 6) % 7
		start = startOfDay(now.AddDate(0, 0, -offset))
		end = endOfDay(start.AddDate(0, 0, 6))
	case PeriodMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = endOfDay(start.AddDate(0, 1, -1))
	case Period3Month:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -2, 0)
		end = endOfDay(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, 1, -1))
	case PeriodYear:
		start = time.Date(now.Year(), 1, 1, 0, 0, 0, 0, loc)
		end = time.Date(now.Year(), 12, 31, 23, 59, 59, int(time.Second-time.Millisecond), loc)
	default:
		return 0, 0, fmt.Errorf("unsupported period %q", period)
	}
	return start.UnixMilli(), end.UnixMilli(), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Millisecond), t.Location())
}

package filters

import (
	"strconv"
	"strings"
	"time"

	"github.com/roach88/docquery/internal/ir"
	"github.com/roach88/docquery/internal/qerr"
)

// DateRange resolves a timespan/previous/next operator and its named span
// into an inclusive [from, to] date range. The engine rewrites the filter
// to a between condition over this range.
//
// Weeks start on Monday. Quarters align to calendar quarters.
func DateRange(operator, span string, now time.Time) (from, to time.Time, err error) {
	op := ir.NormalizeOperator(operator)
	span = strings.ToLower(strings.TrimSpace(span))

	switch op {
	case ir.RangeTimespan:
		return timespanRange(span, now)
	case ir.RangePrevious, ir.RangeNext:
		return relativeRange(op, span, now)
	default:
		return from, to, qerr.Validationf("unknown date-range operator: %s", operator)
	}
}

// timespanRange resolves named spans like "today" or "last quarter".
func timespanRange(span string, now time.Time) (time.Time, time.Time, error) {
	today := startOfDay(now)

	switch span {
	case "today":
		return today, endOfDay(today), nil
	case "yesterday":
		d := today.AddDate(0, 0, -1)
		return d, endOfDay(d), nil
	case "tomorrow":
		d := today.AddDate(0, 0, 1)
		return d, endOfDay(d), nil

	case "this week":
		start := startOfWeek(today)
		return start, endOfDay(start.AddDate(0, 0, 6)), nil
	case "last week":
		start := startOfWeek(today).AddDate(0, 0, -7)
		return start, endOfDay(start.AddDate(0, 0, 6)), nil
	case "next week":
		start := startOfWeek(today).AddDate(0, 0, 7)
		return start, endOfDay(start.AddDate(0, 0, 6)), nil

	case "this month":
		start := startOfMonth(today)
		return start, endOfDay(start.AddDate(0, 1, -1)), nil
	case "last month":
		start := startOfMonth(today).AddDate(0, -1, 0)
		return start, endOfDay(start.AddDate(0, 1, -1)), nil
	case "next month":
		start := startOfMonth(today).AddDate(0, 1, 0)
		return start, endOfDay(start.AddDate(0, 1, -1)), nil

	case "this quarter":
		start := startOfQuarter(today)
		return start, endOfDay(start.AddDate(0, 3, -1)), nil
	case "last quarter":
		start := startOfQuarter(today).AddDate(0, -3, 0)
		return start, endOfDay(start.AddDate(0, 3, -1)), nil

	case "last 6 months":
		start := startOfMonth(today).AddDate(0, -6, 0)
		return start, endOfDay(today), nil

	case "this year":
		start := time.Date(today.Year(), 1, 1, 0, 0, 0, 0, today.Location())
		return start, endOfDay(start.AddDate(1, 0, -1)), nil
	case "last year":
		start := time.Date(today.Year()-1, 1, 1, 0, 0, 0, 0, today.Location())
		return start, endOfDay(start.AddDate(1, 0, -1)), nil
	case "next year":
		start := time.Date(today.Year()+1, 1, 1, 0, 0, 0, 0, today.Location())
		return start, endOfDay(start.AddDate(1, 0, -1)), nil

	default:
		return time.Time{}, time.Time{}, qerr.Validationf("unknown timespan: %s", span)
	}
}

// relativeRange resolves "previous"/"next" with a span like "1 week" or
// "3 months". Previous spans end yesterday; next spans start tomorrow.
func relativeRange(op, span string, now time.Time) (time.Time, time.Time, error) {
	parts := strings.Fields(span)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, qerr.Validationf("invalid relative span %q; expected '<n> <unit>'", span)
	}
	n, err := strconv.Atoi(parts[0])
	if err != nil || n <= 0 {
		return time.Time{}, time.Time{}, qerr.Validationf("invalid relative span count %q", parts[0])
	}

	var days, months, years int
	switch strings.TrimSuffix(parts[1], "s") {
	case "day":
		days = n
	case "week":
		days = 7 * n
	case "month":
		months = n
	case "year":
		years = n
	default:
		return time.Time{}, time.Time{}, qerr.Validationf("invalid relative span unit %q", parts[1])
	}

	today := startOfDay(now)
	if op == ir.RangePrevious {
		end := today.AddDate(0, 0, -1)
		return end.AddDate(-years, -months, -days).AddDate(0, 0, 1), endOfDay(end), nil
	}
	start := today.AddDate(0, 0, 1)
	return start, endOfDay(start.AddDate(years, months, days).AddDate(0, 0, -1)), nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	// ISO week: Monday is day 1.
	offset := (int(t.Weekday()) + 6) % 7
	return startOfDay(t).AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfQuarter(t time.Time) time.Time {
	month := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}

// FormatDate renders a date in the canonical YYYY-MM-DD form.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatDatetime renders a timestamp in the canonical form with
// microsecond precision.
func FormatDatetime(t time.Time) string {
	return t.Format("2006-01-02 15:04:05.000000")
}

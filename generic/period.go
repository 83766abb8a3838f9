package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The window every summary, breakdown and award scan runs over
// =============================================================================

// PeriodKind selects how a period is derived from "now".
type PeriodKind string

const (
	PeriodWeek   PeriodKind = "week"
	PeriodMonth  PeriodKind = "month"
	PeriodYear   PeriodKind = "year"
	PeriodAll    PeriodKind = "all"
	PeriodCustom PeriodKind = "custom"
)

// ParsePeriodKind accepts week|month|year|all; empty means month.
func ParsePeriodKind(s string) (PeriodKind, error) {
	switch PeriodKind(s) {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
		return PeriodKind(s), nil
	default:
		return "", Invalid("period", fmt.Sprintf("unknown period %q", s))
	}
}

// Period is the half-open window [Start, End).
//
// Examples:
//   - Week of Wed 2025-03-12:  [Mon 2025-03-10, Mon 2025-03-17)
//   - Month of 2025-03-12:     [2025-03-01, 2025-04-01)
//   - All time:                [zero, End) where End is the day after now
type Period struct {
	Kind  PeriodKind
	Start time.Time
	End   time.Time
}

// PeriodFor returns the calendar period of the given kind containing now.
func PeriodFor(kind PeriodKind, now time.Time) (Period, error) {
	switch kind {
	case PeriodWeek:
		start := StartOfWeek(now)
		return Period{Kind: kind, Start: start, End: start.AddDate(0, 0, 7)}, nil
	case PeriodMonth:
		start := StartOfMonth(now)
		return Period{Kind: kind, Start: start, End: start.AddDate(0, 1, 0)}, nil
	case PeriodYear:
		start := StartOfYear(now)
		return Period{Kind: kind, Start: start, End: start.AddDate(1, 0, 0)}, nil
	case PeriodAll:
		return Period{Kind: kind, Start: time.Time{}, End: StartOfDay(now).AddDate(0, 0, 1)}, nil
	default:
		return Period{}, Invalid("period", fmt.Sprintf("unknown period %q", kind))
	}
}

// CustomPeriod builds a period from inclusive calendar dates.
func CustomPeriod(from, to time.Time) (Period, error) {
	start, end := StartOfDay(from), StartOfDay(to).AddDate(0, 0, 1)
	if !end.After(start) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Kind: PeriodCustom, Start: start, End: end}, nil
}

// MonthPeriod is the calendar month [year-month-01, next month).
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{Kind: PeriodMonth, Start: start, End: start.AddDate(0, 1, 0)}
}

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Previous returns the immediately preceding period of equal length.
// Calendar kinds step back one calendar unit; custom periods shift back by
// their own duration. All-time periods have no predecessor.
func (p Period) Previous() (Period, bool) {
	switch p.Kind {
	case PeriodWeek:
		return Period{Kind: p.Kind, Start: p.Start.AddDate(0, 0, -7), End: p.Start}, true
	case PeriodMonth:
		return Period{Kind: p.Kind, Start: p.Start.AddDate(0, -1, 0), End: p.Start}, true
	case PeriodYear:
		return Period{Kind: p.Kind, Start: p.Start.AddDate(-1, 0, 0), End: p.Start}, true
	case PeriodCustom:
		d := p.End.Sub(p.Start)
		return Period{Kind: p.Kind, Start: p.Start.Add(-d), End: p.Start}, true
	default:
		return Period{}, false
	}
}

// Days returns the start of every day in the period. All-time periods
// return nil: there is no sensible per-day series for them.
func (p Period) Days() []time.Time {
	if p.Kind == PeriodAll {
		return nil
	}
	var days []time.Time
	for d := StartOfDay(p.Start); d.Before(p.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.Format(time.RFC3339) + ", " + p.End.Format(time.RFC3339) + ")"
}

package domain

import (
	"fmt"
	"time"
)

// Interval is the half-open range [Start, End).
type Interval struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) IsEmpty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether a0 < b1 && b0 < a1. Touching endpoints do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely inside iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Pad widens the interval by d on both sides.
func (iv Interval) Pad(d time.Duration) Interval {
	if d <= 0 {
		return iv
	}
	return Interval{Start: iv.Start.Add(-d), End: iv.End.Add(d)}
}

func (iv Interval) Validate() error {
	if iv.Start.IsZero() || iv.End.IsZero() {
		return NewPolicyViolation("interval", "start and end are required")
	}
	if iv.IsEmpty() {
		return NewPolicyViolation("interval", "end %s must be after start %s", fmtTime(iv.End), fmtTime(iv.Start))
	}
	return nil
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", fmtTime(iv.Start), fmtTime(iv.End))
}

// DateRange is an inclusive range of calendar dates. Only the year, month and
// day of From and To are used.
type DateRange struct {
	From time.Time
	To   time.Time
}

func NewDateRange(from, to time.Time) DateRange {
	return DateRange{From: from, To: to}
}

// Days returns local midnights for every date in the range, in loc.
func (r DateRange) Days(loc *time.Location) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	start := calendarDate(r.From, loc)
	end := calendarDate(r.To, loc)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// StartOfDay returns midnight of t's calendar date in loc. The calendar date
// is taken from t as seen in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func calendarDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DateKey is the yyyy-mm-dd form used for schedule exceptions.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

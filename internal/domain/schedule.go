package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is minutes since local midnight, 0..1440.
type TimeOfDay int

const endOfDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "15:04" and the special "24:00" end of day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return endOfDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// On anchors t to the given calendar date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, loc)
}

type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (w Window) Valid() bool {
	return w.Start >= 0 && w.End <= endOfDay && w.End > w.Start
}

type ScheduleTemplate struct {
	ResourceID uuid.UUID                 `json:"resource_id"`
	Weekly     map[time.Weekday][]Window `json:"weekly"`
	// Exceptions are keyed by yyyy-mm-dd and replace that date's weekly
	// windows entirely. An empty list closes the date.
	Exceptions map[string][]Window `json:"exceptions"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (s *ScheduleTemplate) SetWeekday(day time.Weekday, windows ...Window) {
	if s.Weekly == nil {
		s.Weekly = make(map[time.Weekday][]Window)
	}
	s.Weekly[day] = windows
}

func (s *ScheduleTemplate) SetException(date time.Time, windows ...Window) {
	if s.Exceptions == nil {
		s.Exceptions = make(map[string][]Window)
	}
	if windows == nil {
		windows = []Window{}
	}
	s.Exceptions[DateKey(date)] = windows
}

// WindowsOn resolves the open windows for a calendar date, sorted and merged.
// A nil template has no availability.
func (s *ScheduleTemplate) WindowsOn(date time.Time) []Window {
	if s == nil {
		return nil
	}
	if ex, ok := s.Exceptions[DateKey(date)]; ok {
		return normalizeWindows(ex)
	}
	return normalizeWindows(s.Weekly[date.Weekday()])
}

// OpenIntervals is WindowsOn anchored to absolute instants in loc.
func (s *ScheduleTemplate) OpenIntervals(date time.Time, loc *time.Location) []Interval {
	windows := s.WindowsOn(date)
	out := make([]Interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, Interval{Start: w.Start.On(date, loc), End: w.End.On(date, loc)})
	}
	return out
}

func normalizeWindows(in []Window) []Window {
	ws := make([]Window, 0, len(in))
	for _, w := range in {
		if w.Valid() {
			ws = append(ws, w)
		}
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })

	merged := ws[:0]
	for _, w := range ws {
		if n := len(merged); n > 0 && w.Start <= merged[n-1].End {
			if w.End > merged[n-1].End {
				merged[n-1].End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// ParseWeekday accepts "mon", "Monday", "0".."6" (0 = Sunday) and "7" for Sunday.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		switch {
		case n >= 0 && n <= 6:
			return time.Weekday(n), true
		case n == 7:
			return time.Sunday, true
		}
		return 0, false
	}

	switch s {
	case "sun", "sunday":
		return time.Sunday, true
	case "mon", "monday":
		return time.Monday, true
	case "tue", "tues", "tuesday":
		return time.Tuesday, true
	case "wed", "wednesday":
		return time.Wednesday, true
	case "thu", "thur", "thurs", "thursday":
		return time.Thursday, true
	case "fri", "friday":
		return time.Friday, true
	case "sat", "saturday":
		return time.Saturday, true
	default:
		return 0, false
	}
}

// Clone deep-copies the window maps.
func (s *ScheduleTemplate) Clone() *ScheduleTemplate {
	if s == nil {
		return nil
	}
	out := &ScheduleTemplate{ResourceID: s.ResourceID, UpdatedAt: s.UpdatedAt}
	for day, ws := range s.Weekly {
		out.SetWeekday(day, append([]Window(nil), ws...)...)
	}
	for key, ws := range s.Exceptions {
		if out.Exceptions == nil {
			out.Exceptions = make(map[string][]Window)
		}
		out.Exceptions[key] = append([]Window{}, ws...)
	}
	return out
}

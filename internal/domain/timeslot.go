package domain

import "time"

// TimeSlot is a candidate produced by the availability engine. It is never stored.
type TimeSlot struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

func (s TimeSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

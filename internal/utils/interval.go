package utils

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

// OverlappingQuantity sums the quantity of every reservation that is blocking
// at now and overlaps iv. The reservation with id exclude is skipped.
func OverlappingQuantity(reservations []domain.Reservation, iv domain.Interval, now time.Time, exclude uuid.UUID) int {
	total := 0
	for i := range reservations {
		r := &reservations[i]
		if exclude != uuid.Nil && r.ID == exclude {
			continue
		}
		if !r.IsBlocking(now) {
			continue
		}
		if r.EffectiveInterval(now).Overlaps(iv) {
			total += r.Qty()
		}
	}
	return total
}

// CapacityRemaining never goes below zero.
func CapacityRemaining(capacity int, reservations []domain.Reservation, iv domain.Interval, now time.Time, exclude uuid.UUID) int {
	left := capacity - OverlappingQuantity(reservations, iv, now, exclude)
	if left < 0 {
		return 0
	}
	return left
}

// WouldConflict reports whether adding qty units over iv exceeds capacity.
func WouldConflict(capacity, qty int, reservations []domain.Reservation, iv domain.Interval, now time.Time, exclude uuid.UUID) bool {
	if qty < 1 {
		qty = 1
	}
	return OverlappingQuantity(reservations, iv, now, exclude)+qty > capacity
}

type sweepPoint struct {
	at    time.Time
	delta int
}

// sweep returns the start and end points of every blocking reservation,
// each widened by pad, in time order.
func sweep(reservations []domain.Reservation, pad time.Duration, now time.Time) []sweepPoint {
	points := make([]sweepPoint, 0, 2*len(reservations))
	for i := range reservations {
		r := &reservations[i]
		if !r.IsBlocking(now) {
			continue
		}
		iv := r.EffectiveInterval(now).Pad(pad)
		if iv.IsEmpty() {
			continue
		}
		points = append(points, sweepPoint{at: iv.Start, delta: r.Qty()}, sweepPoint{at: iv.End, delta: -r.Qty()})
	}
	// ends sort before starts at the same instant: intervals are half-open
	sort.Slice(points, func(i, j int) bool {
		if points[i].at.Equal(points[j].at) {
			return points[i].delta < points[j].delta
		}
		return points[i].at.Before(points[j].at)
	})
	return points
}

// PeakQuantity is the largest quantity blocking at any one instant.
func PeakQuantity(reservations []domain.Reservation, now time.Time) int {
	level, peak := 0, 0
	for _, p := range sweep(reservations, 0, now) {
		level += p.delta
		peak = max(peak, level)
	}
	return peak
}

// SaturatedIntervals returns the spans where the concurrent quantity of
// blocking reservations, each widened by pad, reaches capacity.
func SaturatedIntervals(reservations []domain.Reservation, capacity int, pad time.Duration, now time.Time) []domain.Interval {
	points := sweep(reservations, pad, now)

	var out []domain.Interval
	level := 0
	var openedAt time.Time
	for _, p := range points {
		before := level
		level += p.delta
		switch {
		case before < capacity && level >= capacity:
			openedAt = p.at
		case before >= capacity && level < capacity:
			if p.at.After(openedAt) {
				out = appendMerged(out, domain.Interval{Start: openedAt, End: p.at})
			}
		}
	}
	return out
}

func appendMerged(out []domain.Interval, iv domain.Interval) []domain.Interval {
	if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
		if iv.End.After(out[n-1].End) {
			out[n-1].End = iv.End
		}
		return out
	}
	return append(out, iv)
}

// Subtract removes every block from every window. Both inputs may be unsorted;
// the result is sorted and contains no empty intervals.
func Subtract(windows, blocks []domain.Interval) []domain.Interval {
	sorted := make([]domain.Interval, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []domain.Interval
	for _, w := range windows {
		cur := w
		for _, b := range sorted {
			if cur.IsEmpty() {
				break
			}
			if !b.Overlaps(cur) {
				continue
			}
			if b.Start.After(cur.Start) {
				out = append(out, domain.Interval{Start: cur.Start, End: b.Start})
			}
			if b.End.After(cur.Start) {
				cur.Start = b.End
			}
		}
		if !cur.IsEmpty() {
			out = append(out, cur)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

package service

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/utils"
)

type availabilityService struct {
	store repository.Store
	opts  options
}

func NewAvailabilityService(store repository.Store, opts ...Option) AvailabilityService {
	return &availabilityService{store: store, opts: newOptions(opts)}
}

func (s *availabilityService) SlotsForResource(ctx context.Context, resourceID uuid.UUID, duration time.Duration, dates domain.DateRange) (iter.Seq[domain.TimeSlot], error) {
	res, err := s.store.GetResource(ctx, resourceID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Debug("slots requested for unknown resource", "resourceID", resourceID)
		return noSlots, nil
	}
	if err != nil {
		return nil, err
	}
	policy, err := policyFor(ctx, s.store, res.BusinessID)
	if err != nil {
		return nil, err
	}
	return s.Slots(ctx, res, duration, dates, policy)
}

func (s *availabilityService) Slots(ctx context.Context, res *domain.Resource, duration time.Duration, dates domain.DateRange, policy domain.BookingPolicy) (iter.Seq[domain.TimeSlot], error) {
	if duration <= 0 || policy.CheckDuration(duration) != nil {
		return noSlots, nil
	}

	tmpl, err := s.store.GetTemplate(ctx, res.ID)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return noSlots, nil
	}

	loc := res.Location()
	now := s.opts.now()
	days := dates.Days(loc)
	if len(days) == 0 {
		return noSlots, nil
	}

	earliest := now.Add(policy.MinAdvance())
	latest, bounded := policy.MaxAdvance()
	if bounded {
		// no date after the advance horizon can produce a slot
		horizon := now.Add(latest)
		for len(days) > 0 && days[len(days)-1].After(horizon) {
			days = days[:len(days)-1]
		}
		if len(days) == 0 {
			return noSlots, nil
		}
	}

	span := domain.Interval{Start: days[0], End: days[len(days)-1].AddDate(0, 0, 1)}
	reservations, err := s.store.ListBlocking(ctx, res.ID, span.Pad(policy.Buffer()), now)
	if err != nil {
		return nil, err
	}

	g := slotGenerator{
		tmpl:         tmpl,
		loc:          loc,
		now:          now,
		capacity:     res.EffectiveCapacity(),
		reservations: reservations,
		saturated:    utils.SaturatedIntervals(reservations, res.EffectiveCapacity(), policy.Buffer(), now),
		duration:     duration,
		step:         policy.Step(),
		buffer:       policy.Buffer(),
		earliest:     earliest,
		dailyLimit:   policy.MaxDailyReservations,
	}
	if bounded {
		g.latest = now.Add(latest)
	}

	return func(yield func(domain.TimeSlot) bool) {
		emit := func(ts domain.TimeSlot) bool {
			return ctx.Err() == nil && yield(ts)
		}
		for _, day := range days {
			if ctx.Err() != nil || !g.day(day, emit) {
				return
			}
		}
	}, nil
}

func noSlots(func(domain.TimeSlot) bool) {}

// slotGenerator holds one Slots call's snapshot. It is read-only once built so
// the returned sequence can be ranged over more than once.
type slotGenerator struct {
	tmpl         *domain.ScheduleTemplate
	loc          *time.Location
	now          time.Time
	capacity     int
	reservations []domain.Reservation
	saturated    []domain.Interval

	duration time.Duration
	step     time.Duration
	buffer   time.Duration

	earliest   time.Time
	latest     time.Time // zero when unbounded
	dailyLimit int
}

// day yields the slots of one local date and reports whether to continue.
func (g *slotGenerator) day(midnight time.Time, yield func(domain.TimeSlot) bool) bool {
	if g.dailyLimit > 0 && g.reservedOn(midnight) >= g.dailyLimit {
		return true
	}

	open := utils.Subtract(g.tmpl.OpenIntervals(midnight, g.loc), g.saturated)
	for _, w := range open {
		for start := g.firstStart(midnight, w.Start); ; start = start.Add(g.stride()) {
			slot := domain.Interval{Start: start, End: start.Add(g.duration)}
			if slot.End.After(w.End) {
				break
			}
			if !g.latest.IsZero() && start.After(g.latest) {
				return false
			}
			if start.Before(g.earliest) {
				continue
			}
			if utils.WouldConflict(g.capacity, 1, g.reservations, slot.Pad(g.buffer), g.now, uuid.Nil) {
				continue
			}
			if !yield(domain.TimeSlot{Start: slot.Start, End: slot.End}) {
				return false
			}
		}
	}
	return true
}

func (g *slotGenerator) stride() time.Duration {
	if g.step > 0 {
		return g.step
	}
	return g.duration
}

// firstStart is the window start itself, or the first grid point at or after
// it when slots are quantized to a grid anchored at local midnight.
func (g *slotGenerator) firstStart(midnight, windowStart time.Time) time.Time {
	if g.step <= 0 {
		return windowStart
	}
	offset := windowStart.Sub(midnight)
	n := offset / g.step
	if offset%g.step != 0 {
		n++
	}
	return midnight.Add(n * g.step)
}

// reservedOn counts blocking reservations starting on the local date.
func (g *slotGenerator) reservedOn(midnight time.Time) int {
	day := dayOf(midnight, g.loc)
	n := 0
	for i := range g.reservations {
		r := &g.reservations[i]
		if r.IsBlocking(g.now) && !r.Start.Before(day.Start) && r.Start.Before(day.End) {
			n++
		}
	}
	return n
}

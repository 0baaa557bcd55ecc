package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

func mondayOnly() domain.DateRange {
	return domain.NewDateRange(monday, monday)
}

func TestSlots_BufferAroundBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.staff(t)
	f.openWeekdays(t, res)
	policy := f.policy(t, res, func(p *domain.BookingPolicy) { p.BufferMins = 15 })
	f.booking(t, res, span(10, 0, 10, 30), domain.StatusConfirmed)

	svc := NewAvailabilityService(f.store, f.opts...)
	seq, err := svc.Slots(ctx, res, 30*time.Minute, mondayOnly(), policy)
	require.NoError(t, err)
	slots := collect(t, seq)

	for _, excluded := range []domain.Interval{span(9, 45, 10, 15), span(10, 0, 10, 30), span(10, 15, 10, 45)} {
		assert.False(t, containsSlot(slots, excluded), "slot %s must be excluded", excluded)
	}
	assert.True(t, containsSlot(slots, span(10, 45, 11, 15)))
	assert.True(t, containsSlot(slots, span(9, 0, 9, 30)))
	assert.Len(t, slots, 13)

	for i := 1; i < len(slots); i++ {
		assert.True(t, slots[i-1].Start.Before(slots[i].Start), "slots must ascend")
		assert.False(t, slots[i-1].Overlaps(slots[i]))
	}
}

func TestSlots_FixedIntervals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.staff(t)
	f.openWeekdays(t, res)
	policy := f.policy(t, res, func(p *domain.BookingPolicy) {
		p.BufferMins = 15
		p.UseFixedIntervals = true
		p.IntervalMins = 30
	})
	f.booking(t, res, span(10, 0, 10, 30), domain.StatusPending)

	svc := NewAvailabilityService(f.store, f.opts...)
	seq, err := svc.Slots(ctx, res, 30*time.Minute, mondayOnly(), policy)
	require.NoError(t, err)
	slots := collect(t, seq)

	require.Len(t, slots, 13)
	assert.Equal(t, span(9, 0, 9, 30), slots[0])
	// 10:45 is off the half-hour grid
	assert.Equal(t, span(11, 0, 11, 30), slots[1])
	assert.Equal(t, span(16, 30, 17, 0), slots[len(slots)-1])
}

func TestSlots_ExceptionOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.staff(t)
	tmpl := f.openWeekdays(t, res)
	tmpl.SetException(monday)
	tmpl.SetException(monday.AddDate(0, 0, 1), domain.Window{Start: domain.MustTimeOfDay("12:00"), End: domain.MustTimeOfDay("13:00")})
	require.NoError(t, f.store.SaveTemplate(ctx, tmpl))

	svc := NewAvailabilityService(f.store, f.opts...)
	policy := domain.DefaultBookingPolicy(res.BusinessID)

	t.Run("Closed date", func(t *testing.T) {
		seq, err := svc.Slots(ctx, res, time.Hour, mondayOnly(), policy)
		require.NoError(t, err)
		assert.Empty(t, collect(t, seq))
	})

	t.Run("Replaced windows", func(t *testing.T) {
		tuesday := monday.AddDate(0, 0, 1)
		seq, err := svc.Slots(ctx, res, time.Hour, domain.NewDateRange(tuesday, tuesday), policy)
		require.NoError(t, err)
		slots := collect(t, seq)
		require.Len(t, slots, 1)
		assert.Equal(t, tuesday.Add(12*time.Hour), slots[0].Start)
	})

	t.Run("Other dates keep the template", func(t *testing.T) {
		wednesday := monday.AddDate(0, 0, 2)
		seq, err := svc.Slots(ctx, res, time.Hour, domain.NewDateRange(wednesday, wednesday), policy)
		require.NoError(t, err)
		assert.Len(t, collect(t, seq), 8)
	})
}

func TestSlots_IdempotentRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.staff(t)
	f.openWeekdays(t, res)
	f.booking(t, res, span(13, 0, 14, 0), domain.StatusConfirmed)
	svc := NewAvailabilityService(f.store, f.opts...)
	week := domain.NewDateRange(monday, monday.AddDate(0, 0, 6))

	first, err := svc.SlotsForResource(ctx, res.ID, 45*time.Minute, week)
	require.NoError(t, err)
	second, err := svc.SlotsForResource(ctx, res.ID, 45*time.Minute, week)
	require.NoError(t, err)

	a := collect(t, first)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, collect(t, second))
	assert.Equal(t, a, collect(t, first), "a sequence can be ranged over again")
}

func TestSlots_AdvanceWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.staff(t)
	f.openWeekdays(t, res)
	f.clock.Set(at(9, 50))
	policy := f.policy(t, res, func(p *domain.BookingPolicy) {
		p.MinAdvanceMins = 60
		p.MaxAdvanceDays = 1
	})

	svc := NewAvailabilityService(f.store, f.opts...)
	seq, err := svc.Slots(ctx, res, 30*time.Minute, domain.NewDateRange(monday, monday.AddDate(0, 0, 2)), policy)
	require.NoError(t, err)
	slots := collect(t, seq)

	require.NotEmpty(t, slots)
	assert.Equal(t, at(11, 0), slots[0].Start)
	assert.Equal(t, monday.AddDate(0, 0, 1).Add(9*time.Hour+30*time.Minute), slots[len(slots)-1].Start)
}

func TestSlots_EmptyWithoutError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewAvailabilityService(f.store, f.opts...)

	t.Run("Duration above max", func(t *testing.T) {
		res := f.staff(t)
		f.openWeekdays(t, res)
		policy := f.policy(t, res, func(p *domain.BookingPolicy) { p.MaxDurationMins = 60 })
		seq, err := svc.Slots(ctx, res, 90*time.Minute, mondayOnly(), policy)
		require.NoError(t, err)
		assert.Empty(t, collect(t, seq))
	})

	t.Run("No template", func(t *testing.T) {
		res := f.staff(t)
		seq, err := svc.SlotsForResource(ctx, res.ID, time.Hour, mondayOnly())
		require.NoError(t, err)
		assert.Empty(t, collect(t, seq))
	})

	t.Run("Unknown resource", func(t *testing.T) {
		seq, err := svc.SlotsForResource(ctx, uuid.New(), time.Hour, mondayOnly())
		require.NoError(t, err)
		assert.Empty(t, collect(t, seq))
	})

	t.Run("Daily limit reached", func(t *testing.T) {
		res := f.staff(t)
		f.openWeekdays(t, res)
		policy := f.policy(t, res, func(p *domain.BookingPolicy) { p.MaxDailyReservations = 1 })
		f.booking(t, res, span(9, 0, 9, 30), domain.StatusPending)

		seq, err := svc.Slots(ctx, res, 30*time.Minute, mondayOnly(), policy)
		require.NoError(t, err)
		assert.Empty(t, collect(t, seq))

		tuesday := monday.AddDate(0, 0, 1)
		seq, err = svc.Slots(ctx, res, 30*time.Minute, domain.NewDateRange(tuesday, tuesday), policy)
		require.NoError(t, err)
		assert.Len(t, collect(t, seq), 16)
	})
}

func TestSlots_RentalCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.rentalItem(t, 2)
	f.openWeekdays(t, res)
	policy := domain.DefaultBookingPolicy(res.BusinessID)
	svc := NewAvailabilityService(f.store, f.opts...)

	rent := func() {
		r := &domain.RentalBooking{Reservation: domain.Reservation{ResourceID: res.ID, Interval: span(10, 0, 11, 0), Status: domain.StatusDepositPaid}}
		require.NoError(t, f.store.CreateRental(ctx, r, repository.CreateOptions{Now: f.clock.Now()}))
	}

	rent()
	seq, err := svc.Slots(ctx, res, time.Hour, mondayOnly(), policy)
	require.NoError(t, err)
	assert.True(t, containsSlot(collect(t, seq), span(10, 0, 11, 0)), "one unit is still free")

	rent()
	seq, err = svc.Slots(ctx, res, time.Hour, mondayOnly(), policy)
	require.NoError(t, err)
	slots := collect(t, seq)
	assert.False(t, containsSlot(slots, span(10, 0, 11, 0)))
	assert.True(t, containsSlot(slots, span(11, 0, 12, 0)))
}

func TestSlots_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	res := f.staff(t)
	f.openWeekdays(t, res)
	svc := NewAvailabilityService(f.store, f.opts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq, err := svc.SlotsForResource(ctx, res.ID, 30*time.Minute, domain.NewDateRange(monday, monday.AddDate(0, 0, 4)))
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		cancel()
	}
	assert.Equal(t, 1, n)
}

func TestConflictDetector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res := f.rentalItem(t, 3)
	r := &domain.RentalBooking{Reservation: domain.Reservation{ResourceID: res.ID, Interval: span(10, 0, 12, 0), Status: domain.StatusCheckedOut, Quantity: 2}}
	require.NoError(t, f.store.CreateRental(ctx, r, repository.CreateOptions{Now: f.clock.Now()}))

	d := NewConflictDetector(f.store, f.opts...)

	left, err := d.CapacityRemaining(ctx, res.ID, span(11, 0, 13, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	conflict, err := d.WouldConflict(ctx, res.ID, span(11, 0, 13, 0), 2, uuid.Nil)
	require.NoError(t, err)
	assert.True(t, conflict)

	conflict, err = d.WouldConflict(ctx, res.ID, span(12, 0, 13, 0), 3, uuid.Nil)
	require.NoError(t, err)
	assert.False(t, conflict, "touching endpoints do not overlap")

	conflict, err = d.WouldConflict(ctx, res.ID, span(11, 0, 13, 0), 3, r.ID)
	require.NoError(t, err)
	assert.False(t, conflict)

	t.Run("Overdue rental keeps blocking", func(t *testing.T) {
		f.clock.Set(at(15, 0))
		left, err := d.CapacityRemaining(ctx, res.ID, span(14, 0, 16, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, left)
	})

	t.Run("Unknown resource", func(t *testing.T) {
		_, err := d.CapacityRemaining(ctx, uuid.New(), span(9, 0, 10, 0))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

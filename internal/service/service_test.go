package service

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/repository/memory"
)

// monday is the calendar day most tests book on.
var monday = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func span(h1, m1, h2, m2 int) domain.Interval {
	return domain.Interval{Start: at(h1, m1), End: at(h2, m2)}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(e domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) Last() domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	store  *memory.Store
	clock  *clock
	events *recorder
	opts   []Option
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		clock:  &clock{now: monday.Add(-48 * time.Hour)},
		events: &recorder{},
	}
	f.opts = []Option{WithClock(f.clock.Now), WithEmitter(f.events)}
	return f
}

func (f *fixture) staff(t *testing.T) *domain.Resource {
	t.Helper()
	res := &domain.Resource{BusinessID: uuid.New(), Kind: domain.ResourceKindStaff, Name: "Alex", Timezone: "UTC"}
	require.NoError(t, f.store.CreateResource(context.Background(), res))
	return res
}

func (f *fixture) rentalItem(t *testing.T, capacity int) *domain.Resource {
	t.Helper()
	res := &domain.Resource{
		BusinessID: uuid.New(),
		Kind:       domain.ResourceKindRentalItem,
		Name:       "Kayak",
		Capacity:   capacity,
		Timezone:   "UTC",
		RentalTerms: &domain.RentalTerms{
			RateType:          domain.RateTypeDaily,
			RateCents:         5000,
			DepositCents:      20000,
			LateFeePercentage: decimal.NewFromInt(15),
		},
	}
	require.NoError(t, f.store.CreateResource(context.Background(), res))
	return res
}

func (f *fixture) policy(t *testing.T, res *domain.Resource, edit func(*domain.BookingPolicy)) domain.BookingPolicy {
	t.Helper()
	p := domain.DefaultBookingPolicy(res.BusinessID)
	edit(&p)
	require.NoError(t, f.store.SavePolicy(context.Background(), &p))
	return p
}

// openWeekdays opens 09:00-17:00 Monday to Friday.
func (f *fixture) openWeekdays(t *testing.T, res *domain.Resource) *domain.ScheduleTemplate {
	t.Helper()
	tmpl := &domain.ScheduleTemplate{ResourceID: res.ID}
	for d := time.Monday; d <= time.Friday; d++ {
		tmpl.SetWeekday(d, domain.Window{Start: domain.MustTimeOfDay("09:00"), End: domain.MustTimeOfDay("17:00")})
	}
	require.NoError(t, f.store.SaveTemplate(context.Background(), tmpl))
	return tmpl
}

func (f *fixture) booking(t *testing.T, res *domain.Resource, iv domain.Interval, status domain.Status) *domain.Booking {
	t.Helper()
	b := &domain.Booking{Reservation: domain.Reservation{ResourceID: res.ID, Interval: iv, Status: status}}
	require.NoError(t, f.store.CreateBooking(context.Background(), b, repository.CreateOptions{Now: f.clock.Now()}))
	return b
}

func collect(t *testing.T, seq func(func(domain.TimeSlot) bool)) []domain.Interval {
	t.Helper()
	var out []domain.Interval
	for s := range seq {
		out = append(out, s.Interval())
	}
	return out
}

func containsSlot(slots []domain.Interval, iv domain.Interval) bool {
	return slices.ContainsFunc(slots, func(s domain.Interval) bool {
		return s.Start.Equal(iv.Start) && s.End.Equal(iv.End)
	})
}

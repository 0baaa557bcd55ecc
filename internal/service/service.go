package service

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/events"
	"github.com/brianlane/bizblasts-sub006/internal/idempotency"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type AvailabilityService interface {
	// Slots generates candidate slots for one duration. The sequence is built
	// from a snapshot taken when Slots is called; call again for fresh state.
	Slots(ctx context.Context, resource *domain.Resource, duration time.Duration, dates domain.DateRange, policy domain.BookingPolicy) (iter.Seq[domain.TimeSlot], error)
	SlotsForResource(ctx context.Context, resourceID uuid.UUID, duration time.Duration, dates domain.DateRange) (iter.Seq[domain.TimeSlot], error)
}

type ConflictDetector interface {
	WouldConflict(ctx context.Context, resourceID uuid.UUID, iv domain.Interval, quantity int, exclude uuid.UUID) (bool, error)
	CapacityRemaining(ctx context.Context, resourceID uuid.UUID, iv domain.Interval) (int, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string, by Actor) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Booking, error)
	RescheduleBooking(ctx context.Context, id uuid.UUID, expectedVersion int64, iv domain.Interval) (*domain.Booking, error)
	DeleteBusiness(ctx context.Context, businessID uuid.UUID) (int64, error)
}

// CatalogService manages the resources, policies and schedules the engine
// reads from.
type CatalogService interface {
	CreateResource(ctx context.Context, r *domain.Resource) error
	GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error)
	ListResources(ctx context.Context, businessID uuid.UUID) ([]domain.Resource, error)
	// SetCapacity changes a rental item's inventory count. Lowering it below
	// what is already reserved at any instant is a ConflictError.
	SetCapacity(ctx context.Context, resourceID uuid.UUID, capacity int) (*domain.Resource, error)
	// GetPolicy returns the default policy for a business that never saved one.
	GetPolicy(ctx context.Context, businessID uuid.UUID) (domain.BookingPolicy, error)
	SavePolicy(ctx context.Context, p *domain.BookingPolicy) error
	GetTemplate(ctx context.Context, resourceID uuid.UUID) (*domain.ScheduleTemplate, error)
	SaveTemplate(ctx context.Context, t *domain.ScheduleTemplate) error
}

type RentalService interface {
	CreateRental(ctx context.Context, req CreateRentalRequest) (*domain.RentalBooking, error)
	GetRental(ctx context.Context, id uuid.UUID) (*domain.RentalBooking, error)
	RecordDeposit(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.RentalBooking, error)
	CheckOut(ctx context.Context, id uuid.UUID, expectedVersion int64, report domain.ReportInput) (*domain.RentalBooking, error)
	ProcessReturn(ctx context.Context, id uuid.UUID, expectedVersion int64, report domain.ReportInput, damageCents int64) (*domain.RentalBooking, error)
	CompleteRental(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.RentalBooking, error)
	CancelRental(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string) (*domain.RentalBooking, error)
	ConditionReports(ctx context.Context, id uuid.UUID) ([]domain.ConditionReport, error)
}

// Actor tells the booking service who asked for a change. Only customers are
// bound by the cancellation window.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorStaff    Actor = "staff"
)

type CreateBookingRequest struct {
	ResourceID     uuid.UUID
	CustomerID     uuid.UUID
	ServiceID      uuid.UUID
	Interval       domain.Interval
	Quantity       int
	IdempotencyKey string
}

type CreateRentalRequest struct {
	ResourceID     uuid.UUID
	CustomerID     uuid.UUID
	Interval       domain.Interval
	Quantity       int
	IdempotencyKey string
}

type options struct {
	now     func() time.Time
	emitter events.Emitter
	idem    idempotency.Store
	loc     *time.Location
}

type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithEmitter(e events.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithIdempotency enables idempotency keys on creates.
func WithIdempotency(s idempotency.Store) Option {
	return func(o *options) { o.idem = s }
}

// WithLocation sets the timezone given to resources created without one.
func WithLocation(loc *time.Location) Option {
	return func(o *options) { o.loc = loc }
}

func newOptions(opts []Option) options {
	o := options{now: time.Now, emitter: events.Discard{}, loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func policyFor(ctx context.Context, repo repository.PolicyRepository, businessID uuid.UUID) (domain.BookingPolicy, error) {
	p, err := repo.GetPolicy(ctx, businessID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultBookingPolicy(businessID), nil
	}
	if err != nil {
		return domain.BookingPolicy{}, err
	}
	return *p, nil
}

// versionOrCurrent lets callers pass 0 to act on whatever they just read.
func versionOrCurrent(expected, current int64) int64 {
	if expected == 0 {
		return current
	}
	return expected
}

// dayOf is the local calendar day containing t.
func dayOf(t time.Time, loc *time.Location) domain.Interval {
	start := domain.StartOfDay(t, loc)
	return domain.Interval{Start: start, End: start.AddDate(0, 0, 1)}
}

// isExpected separates caller-facing rejections from failures worth an error log.
func isExpected(err error) bool {
	for _, target := range []error{
		domain.ErrConflict,
		domain.ErrPolicyViolation,
		domain.ErrInvalidTransition,
		domain.ErrStaleUpdate,
		domain.ErrInventoryExhausted,
		domain.ErrNotFound,
		idempotency.ErrInFlight,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// createOnce runs create at most once per idempotency key. A repeated key
// returns the reservation the first call produced, read back through get.
func createOnce[T any](ctx context.Context, store idempotency.Store, key string, get func(uuid.UUID) (T, error), create func() (T, uuid.UUID, error)) (T, error) {
	var zero T
	if store == nil || key == "" {
		v, _, err := create()
		return v, err
	}

	existing, claimed, err := store.Claim(ctx, key)
	if err != nil {
		return zero, err
	}
	if !claimed {
		return get(existing)
	}

	v, id, err := create()
	if err != nil {
		if rerr := store.Release(ctx, key); rerr != nil {
			logger.Warn("failed to release idempotency key", "key", key, "error", rerr)
		}
		return zero, err
	}
	if err := store.Bind(ctx, key, id); err != nil {
		// the reservation exists; a retry with this key will wait out the TTL
		logger.Warn("failed to bind idempotency key", "key", key, "reservationID", id, "error", err)
	}
	return v, nil
}

func guard(l domain.Lifecycle, id uuid.UUID, from domain.Status, action domain.Action) (domain.Rule, error) {
	rule, err := l.Next(from, action)
	if err != nil {
		var ite *domain.InvalidTransitionError
		if errors.As(err, &ite) {
			ite.ReservationID = id
		}
		return domain.Rule{}, err
	}
	return rule, nil
}

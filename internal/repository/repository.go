package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

type ResourceRepository interface {
	CreateResource(ctx context.Context, r *domain.Resource) error
	GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error)
	ListResources(ctx context.Context, businessID uuid.UUID) ([]domain.Resource, error)
}

type PolicyRepository interface {
	// GetPolicy returns domain.ErrNotFound when the business never saved one.
	GetPolicy(ctx context.Context, businessID uuid.UUID) (*domain.BookingPolicy, error)
	SavePolicy(ctx context.Context, p *domain.BookingPolicy) error
}

type ScheduleRepository interface {
	// GetTemplate returns (nil, nil) for a resource without a template.
	GetTemplate(ctx context.Context, resourceID uuid.UUID) (*domain.ScheduleTemplate, error)
	SaveTemplate(ctx context.Context, t *domain.ScheduleTemplate) error
}

type ConditionReportRepository interface {
	ListReports(ctx context.Context, rentalID uuid.UUID) ([]domain.ConditionReport, error)
}

// CreateOptions are the policy limits the store enforces inside the same
// critical section as the capacity check.
type CreateOptions struct {
	Now time.Time
	// Buffer widens the candidate interval before summing overlaps.
	Buffer time.Duration
	// DailyLimit caps blocking reservations starting within Day. Zero disables it.
	DailyLimit int
	Day        domain.Interval
}

// BookingTransition is a versioned change to one booking. Only the fields the
// action needs are read.
type BookingTransition struct {
	ID              uuid.UUID
	ExpectedVersion int64
	Action          domain.Action
	Now             time.Time

	// reschedule
	NewInterval *domain.Interval
	Buffer      time.Duration

	// cancel
	CancellationReason string
}

// RentalTransition is a versioned change to one rental.
type RentalTransition struct {
	ID              uuid.UUID
	ExpectedVersion int64
	Action          domain.Action
	Now             time.Time

	DepositStatus      domain.DepositStatus
	LateFeeCents       int64
	DamageFeeCents     int64
	DepositRefundCents *int64
	CancellationReason string

	// Capacity rechecks apply the same buffer and daily limit as a create.
	Buffer     time.Duration
	DailyLimit int
	Day        domain.Interval

	// Report is inserted in the same transaction as the status change.
	Report *domain.ConditionReport
}

// ReservationStore owns the non-overlap invariant: creates and capacity
// rechecking transitions are serialized per resource.
type ReservationStore interface {
	CreateBooking(ctx context.Context, b *domain.Booking, opts CreateOptions) error
	CreateRental(ctx context.Context, r *domain.RentalBooking, opts CreateOptions) error
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetRental(ctx context.Context, id uuid.UUID) (*domain.RentalBooking, error)

	TransitionBooking(ctx context.Context, t BookingTransition) (*domain.Booking, error)
	TransitionRental(ctx context.Context, t RentalTransition) (*domain.RentalBooking, error)

	// ListBlocking returns reservations of a resource that block any part of
	// window at now, overdue rentals included.
	ListBlocking(ctx context.Context, resourceID uuid.UUID, window domain.Interval, now time.Time) ([]domain.Reservation, error)
	// ListEndedBefore returns up to limit reservations of kind in status whose
	// end time is before cutoff, oldest first.
	ListEndedBefore(ctx context.Context, kind domain.ReservationKind, status domain.Status, cutoff time.Time, limit int) ([]domain.Reservation, error)
	// MarkBusinessDeleted moves every booking of the business to business_deleted.
	MarkBusinessDeleted(ctx context.Context, businessID uuid.UUID, now time.Time) (int64, error)
	// SetCapacity changes a resource's capacity under its lock. It returns a
	// ConflictError when reservations blocking at now already exceed capacity.
	SetCapacity(ctx context.Context, resourceID uuid.UUID, capacity int, now time.Time) (*domain.Resource, error)
}

type Store interface {
	ResourceRepository
	PolicyRepository
	ScheduleRepository
	ConditionReportRepository
	ReservationStore
}

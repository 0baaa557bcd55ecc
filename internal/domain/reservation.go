package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	// booking states
	StatusPending         Status = "pending"
	StatusConfirmed       Status = "confirmed"
	StatusCompleted       Status = "completed"
	StatusCancelled       Status = "cancelled"
	StatusBusinessDeleted Status = "business_deleted"

	// rental states
	StatusPendingDeposit Status = "pending_deposit"
	StatusDepositPaid    Status = "deposit_paid"
	StatusCheckedOut     Status = "checked_out"
	StatusReturned       Status = "returned"

	// StatusOverdue is never stored. It is derived from checked_out at read time.
	StatusOverdue Status = "overdue"
)

type ReservationKind string

const (
	KindBooking ReservationKind = "booking"
	KindRental  ReservationKind = "rental"
)

type DepositStatus string

const (
	DepositPending    DepositStatus = "pending"
	DepositAuthorized DepositStatus = "authorized"
	DepositCaptured   DepositStatus = "captured"
	DepositRefunded   DepositStatus = "refunded"
)

var blockingStatuses = map[ReservationKind]map[Status]bool{
	KindBooking: {StatusPending: true, StatusConfirmed: true},
	KindRental:  {StatusDepositPaid: true, StatusCheckedOut: true, StatusOverdue: true},
}

// BlockingStatuses lists the stored statuses that count toward capacity for a kind.
func BlockingStatuses(kind ReservationKind) []Status {
	switch kind {
	case KindBooking:
		return []Status{StatusPending, StatusConfirmed}
	case KindRental:
		return []Status{StatusDepositPaid, StatusCheckedOut}
	}
	return nil
}

// AllBlockingStatuses is the union of every kind's stored blocking statuses.
func AllBlockingStatuses() []Status {
	return append(BlockingStatuses(KindBooking), BlockingStatuses(KindRental)...)
}

func IsBlockingStatus(kind ReservationKind, s Status) bool {
	return blockingStatuses[kind][s]
}

// Reservation is the part shared by bookings and rentals. It is also the shape
// the conflict detector works on.
type Reservation struct {
	ID         uuid.UUID       `json:"id"`
	BusinessID uuid.UUID       `json:"business_id"`
	ResourceID uuid.UUID       `json:"resource_id"`
	Kind       ReservationKind `json:"kind"`
	Interval
	Status    Status    `json:"status"`
	Quantity  int       `json:"quantity"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ReturnedAt is only set on rentals; it drives the derived overdue state.
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// DerivedStatus maps checked_out to overdue once now passes the end time.
func (r *Reservation) DerivedStatus(now time.Time) Status {
	if r.Kind == KindRental && r.Status == StatusCheckedOut && r.ReturnedAt == nil && now.After(r.End) {
		return StatusOverdue
	}
	return r.Status
}

func (r *Reservation) IsBlocking(now time.Time) bool {
	return IsBlockingStatus(r.Kind, r.DerivedStatus(now))
}

// EffectiveInterval extends an overdue rental to now: the unit is still out.
func (r *Reservation) EffectiveInterval(now time.Time) Interval {
	if r.DerivedStatus(now) == StatusOverdue {
		return Interval{Start: r.Start, End: now}
	}
	return r.Interval
}

func (r *Reservation) Qty() int {
	if r.Quantity < 1 {
		return 1
	}
	return r.Quantity
}

type Booking struct {
	Reservation
	CustomerID         uuid.UUID  `json:"customer_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

type RentalBooking struct {
	Reservation
	CustomerID         uuid.UUID       `json:"customer_id"`
	DepositCents       int64           `json:"deposit_amount_cents"`
	DepositStatus      DepositStatus   `json:"deposit_status"`
	RateType           RateType        `json:"rate_type"`
	RateCents          int64           `json:"rate_amount_cents"`
	LateFeePercentage  decimal.Decimal `json:"late_fee_percentage"`
	ChargeCents        int64           `json:"charge_cents"`
	LateFeeCents       int64           `json:"late_fee_amount_cents"`
	DamageFeeCents     int64           `json:"damage_fee_amount_cents"`
	DepositRefundCents *int64          `json:"deposit_refund_amount_cents,omitempty"`
	ActualPickupTime   *time.Time      `json:"actual_pickup_time,omitempty"`
	CancellationReason string          `json:"cancellation_reason,omitempty"`
}

// FullRefund reports whether the settled refund returns the whole deposit.
func (r *RentalBooking) FullRefund() bool {
	return r.DepositRefundCents != nil && *r.DepositRefundCents == r.DepositCents
}

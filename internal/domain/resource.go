package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ResourceKind string

const (
	ResourceKindStaff      ResourceKind = "staff"
	ResourceKindRentalItem ResourceKind = "rental_item"
)

type RateType string

const (
	RateTypeHourly RateType = "hourly"
	RateTypeDaily  RateType = "daily"
	RateTypeWeekly RateType = "weekly"
)

func (r RateType) Valid() bool {
	switch r {
	case RateTypeHourly, RateTypeDaily, RateTypeWeekly:
		return true
	}
	return false
}

// RentalTerms is the pricing configured on a rental item. Bookings copy the
// terms at creation so later price edits do not change open rentals.
type RentalTerms struct {
	RateType          RateType        `json:"rate_type"`
	RateCents         int64           `json:"rate_cents"`
	DepositCents      int64           `json:"deposit_cents"`
	LateFeePercentage decimal.Decimal `json:"late_fee_percentage"` // 15 means 15%
}

type Resource struct {
	ID          uuid.UUID    `json:"id"`
	BusinessID  uuid.UUID    `json:"business_id"`
	Kind        ResourceKind `json:"kind"`
	Name        string       `json:"name"`
	Capacity    int          `json:"capacity"`
	Timezone    string       `json:"timezone"`
	RentalTerms *RentalTerms `json:"rental_terms,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// EffectiveCapacity is 1 for staff regardless of the stored value.
func (r *Resource) EffectiveCapacity() int {
	if r.Kind == ResourceKindStaff || r.Capacity < 1 {
		return 1
	}
	return r.Capacity
}

// Location falls back to UTC when the timezone is unset or unknown.
func (r *Resource) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

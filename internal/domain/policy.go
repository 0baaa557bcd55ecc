package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingPolicy is a per-business snapshot. Zero values mean "not set" for
// every limit; a business replaces its policy wholesale.
type BookingPolicy struct {
	BusinessID                  uuid.UUID `json:"business_id" yaml:"-"`
	BufferMins                  int       `json:"buffer_mins" yaml:"buffer_mins"`
	MinDurationMins             int       `json:"min_duration_mins" yaml:"min_duration_mins"`
	MaxDurationMins             int       `json:"max_duration_mins" yaml:"max_duration_mins"`
	MinAdvanceMins              int       `json:"min_advance_mins" yaml:"min_advance_mins"`
	MaxAdvanceDays              int       `json:"max_advance_days" yaml:"max_advance_days"`
	MaxDailyReservations        int       `json:"max_daily_reservations" yaml:"max_daily_reservations"`
	UseFixedIntervals           bool      `json:"use_fixed_intervals" yaml:"use_fixed_intervals"`
	IntervalMins                int       `json:"interval_mins" yaml:"interval_mins"`
	CancellationWindowMins      int       `json:"cancellation_window_mins" yaml:"cancellation_window_mins"`
	AutoConfirm                 bool      `json:"auto_confirm" yaml:"auto_confirm"`
	AllowCheckoutWithoutDeposit bool      `json:"allow_checkout_without_deposit" yaml:"allow_checkout_without_deposit"`
}

// DefaultBookingPolicy is used for businesses that never saved a policy.
func DefaultBookingPolicy(businessID uuid.UUID) BookingPolicy {
	return BookingPolicy{
		BusinessID:   businessID,
		IntervalMins: 30,
	}
}

func (p BookingPolicy) Buffer() time.Duration {
	return minutes(p.BufferMins)
}

func (p BookingPolicy) MinAdvance() time.Duration {
	return minutes(p.MinAdvanceMins)
}

// MaxAdvance returns false when no upper bound is configured.
func (p BookingPolicy) MaxAdvance() (time.Duration, bool) {
	if p.MaxAdvanceDays <= 0 {
		return 0, false
	}
	return time.Duration(p.MaxAdvanceDays) * 24 * time.Hour, true
}

func (p BookingPolicy) CancellationWindow() time.Duration {
	return minutes(p.CancellationWindowMins)
}

// Step is the grid step for fixed-interval quantization, or zero when slots
// step by their own duration.
func (p BookingPolicy) Step() time.Duration {
	if !p.UseFixedIntervals || p.IntervalMins <= 0 {
		return 0
	}
	return minutes(p.IntervalMins)
}

// CheckDuration enforces min/max duration. Unset bounds are ignored.
func (p BookingPolicy) CheckDuration(d time.Duration) error {
	if d <= 0 {
		return NewPolicyViolation("duration", "duration must be positive")
	}
	if p.MinDurationMins > 0 && d < minutes(p.MinDurationMins) {
		return NewPolicyViolation("min_duration", "%s is shorter than %d minutes", d, p.MinDurationMins)
	}
	if p.MaxDurationMins > 0 && d > minutes(p.MaxDurationMins) {
		return NewPolicyViolation("max_duration", "%s is longer than %d minutes", d, p.MaxDurationMins)
	}
	return nil
}

// CheckAdvance enforces the advance window for a reservation starting at start.
func (p BookingPolicy) CheckAdvance(start, now time.Time) error {
	if earliest := now.Add(p.MinAdvance()); start.Before(earliest) {
		return NewPolicyViolation("min_advance", "start %s is before %s", fmtTime(start), fmtTime(earliest))
	}
	if max, ok := p.MaxAdvance(); ok {
		if latest := now.Add(max); start.After(latest) {
			return NewPolicyViolation("max_advance", "start %s is after %s", fmtTime(start), fmtTime(latest))
		}
	}
	return nil
}

func minutes(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}

package repository

import (
	"errors"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

// Both store implementations run the same validation on the row they locked,
// so the rules below live next to the interfaces.

func checkVersion(id uuid.UUID, expected, actual int64) error {
	if expected != actual {
		return &domain.StaleUpdateError{ReservationID: id, ExpectedVersion: expected, ActualVersion: actual}
	}
	return nil
}

func nextRule(l domain.Lifecycle, id uuid.UUID, from domain.Status, action domain.Action) (domain.Rule, error) {
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

// Resolve validates t against the locked booking and returns the rule to apply.
func (t BookingTransition) Resolve(b *domain.Booking) (domain.Rule, error) {
	if err := checkVersion(b.ID, t.ExpectedVersion, b.Version); err != nil {
		return domain.Rule{}, err
	}
	rule, err := nextRule(domain.BookingLifecycle, b.ID, b.Status, t.Action)
	if err != nil {
		return domain.Rule{}, err
	}
	switch t.Action {
	case domain.ActionReschedule:
		if t.NewInterval == nil {
			return domain.Rule{}, domain.NewPolicyViolation("interval", "reschedule needs a new interval")
		}
		if err := t.NewInterval.Validate(); err != nil {
			return domain.Rule{}, err
		}
	case domain.ActionCancel:
		if t.CancellationReason == "" {
			return domain.Rule{}, domain.NewPolicyViolation("cancellation_reason", "a reason is required to cancel")
		}
	}
	return rule, nil
}

// Candidate is the interval that must be re-validated when rule.RecheckCapacity is set.
func (t BookingTransition) Candidate(b *domain.Booking) domain.Interval {
	if t.NewInterval != nil {
		return *t.NewInterval
	}
	return b.Interval
}

func (t BookingTransition) Apply(b *domain.Booking, rule domain.Rule) {
	b.Status = rule.To
	b.Version++
	b.UpdatedAt = t.Now
	switch t.Action {
	case domain.ActionReschedule:
		b.Interval = *t.NewInterval
	case domain.ActionCancel:
		b.CancellationReason = t.CancellationReason
		at := t.Now
		b.CancelledAt = &at
	}
}

// Resolve validates t against the locked rental. The stored checked_out state
// covers the derived overdue state, so no clock is needed here.
func (t RentalTransition) Resolve(r *domain.RentalBooking) (domain.Rule, error) {
	if err := checkVersion(r.ID, t.ExpectedVersion, r.Version); err != nil {
		return domain.Rule{}, err
	}
	rule, err := nextRule(domain.RentalLifecycle, r.ID, r.Status, t.Action)
	if err != nil {
		return domain.Rule{}, err
	}
	if t.Action == domain.ActionCancel && t.CancellationReason == "" {
		return domain.Rule{}, domain.NewPolicyViolation("cancellation_reason", "a reason is required to cancel")
	}
	if t.Report != nil && t.Report.RentalID != r.ID {
		return domain.Rule{}, domain.NewPolicyViolation("condition_report", "report belongs to rental %s", t.Report.RentalID)
	}
	return rule, nil
}

// CreateOptions are the limits a capacity recheck enforces.
func (t RentalTransition) CreateOptions() CreateOptions {
	return CreateOptions{Now: t.Now, Buffer: t.Buffer, DailyLimit: t.DailyLimit, Day: t.Day}
}

func (t RentalTransition) Apply(r *domain.RentalBooking, rule domain.Rule) {
	r.Status = rule.To
	r.Version++
	r.UpdatedAt = t.Now
	if t.DepositStatus != "" {
		r.DepositStatus = t.DepositStatus
	}
	switch t.Action {
	case domain.ActionCheckOut:
		at := t.Now
		r.ActualPickupTime = &at
	case domain.ActionReturn:
		at := t.Now
		r.ReturnedAt = &at
		r.LateFeeCents = t.LateFeeCents
		r.DamageFeeCents = t.DamageFeeCents
		r.DepositRefundCents = t.DepositRefundCents
	case domain.ActionCancel:
		r.CancellationReason = t.CancellationReason
	}
}

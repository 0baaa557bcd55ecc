package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/idempotency"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/utils"
)

type rentalService struct {
	store repository.Store
	opts  options
}

func NewRentalService(store repository.Store, opts ...Option) RentalService {
	return &rentalService{store: store, opts: newOptions(opts)}
}

func (s *rentalService) CreateRental(ctx context.Context, req CreateRentalRequest) (*domain.RentalBooking, error) {
	const method = "rentalService.CreateRental"
	logger.EnterMethod(method, "resourceID", req.ResourceID, "interval", req.Interval, "quantity", req.Quantity)

	if err := req.Interval.Validate(); err != nil {
		logger.ExitMethodWithError(method, err, true, "resourceID", req.ResourceID)
		return nil, err
	}
	res, err := s.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "resourceID", req.ResourceID)
		return nil, err
	}

	key := ""
	if req.IdempotencyKey != "" {
		key = idempotency.Key(res.BusinessID, req.IdempotencyKey)
	}
	r, err := createOnce(ctx, s.opts.idem, key,
		func(id uuid.UUID) (*domain.RentalBooking, error) { return s.GetRental(ctx, id) },
		func() (*domain.RentalBooking, uuid.UUID, error) {
			r, err := s.create(ctx, res, req)
			if err != nil {
				return nil, uuid.Nil, err
			}
			return r, r.ID, nil
		},
	)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "resourceID", req.ResourceID)
		return nil, err
	}

	logger.ExitMethod(method, "rentalID", r.ID, "chargeCents", r.ChargeCents, "depositCents", r.DepositCents)
	return r, nil
}

func (s *rentalService) create(ctx context.Context, res *domain.Resource, req CreateRentalRequest) (*domain.RentalBooking, error) {
	if res.Kind != domain.ResourceKindRentalItem || res.RentalTerms == nil {
		return nil, domain.NewPolicyViolation("resource_kind", "resource %s is not a rental item", res.ID)
	}
	terms := res.RentalTerms
	if !terms.RateType.Valid() {
		return nil, domain.NewPolicyViolation("rate_type", "resource %s has rate type %q", res.ID, terms.RateType)
	}

	policy, err := policyFor(ctx, s.store, res.BusinessID)
	if err != nil {
		return nil, err
	}
	now := s.opts.now()
	// rental length is priced by the rate type, so only the advance window applies
	if err := policy.CheckAdvance(req.Interval.Start, now); err != nil {
		return nil, err
	}

	qty := max(req.Quantity, 1)
	blocking, err := s.store.ListBlocking(ctx, res.ID, req.Interval, now)
	if err != nil {
		return nil, err
	}
	if remaining := utils.CapacityRemaining(res.EffectiveCapacity(), blocking, req.Interval, now, uuid.Nil); qty > remaining {
		return nil, &domain.InventoryExhaustedError{ResourceID: res.ID, Requested: qty, Remaining: remaining}
	}

	cost := utils.CalculateRentalCost(req.Interval, terms.RateType, terms.RateCents, qty)
	r := &domain.RentalBooking{
		Reservation: domain.Reservation{
			ResourceID: res.ID,
			Interval:   req.Interval,
			Status:     domain.StatusPendingDeposit,
			Quantity:   qty,
		},
		CustomerID:        req.CustomerID,
		DepositCents:      terms.DepositCents * int64(qty),
		DepositStatus:     domain.DepositPending,
		RateType:          terms.RateType,
		RateCents:         terms.RateCents,
		LateFeePercentage: terms.LateFeePercentage,
		ChargeCents:       cost.TotalCost,
	}
	err = s.store.CreateRental(ctx, r, repository.CreateOptions{
		Now:        now,
		Buffer:     policy.Buffer(),
		DailyLimit: policy.MaxDailyReservations,
		Day:        dayOf(req.Interval.Start, res.Location()),
	})
	if err != nil {
		return nil, err
	}

	s.opts.emitter.Emit(domain.NewEvent(domain.EventRentalCreated, &r.Reservation, nil, now))
	return r, nil
}

// GetRental reports the derived overdue status in place of checked_out.
func (s *rentalService) GetRental(ctx context.Context, id uuid.UUID) (*domain.RentalBooking, error) {
	r, err := s.store.GetRental(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Status = r.DerivedStatus(s.opts.now())
	return r, nil
}

func (s *rentalService) RecordDeposit(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.RentalBooking, error) {
	const method = "rentalService.RecordDeposit"
	logger.EnterMethod(method, "rentalID", id, "expectedVersion", expectedVersion)

	r, err := s.store.GetRental(ctx, id)
	if err == nil {
		r, err = s.transition(ctx, r, repository.RentalTransition{
			ID:              id,
			ExpectedVersion: versionOrCurrent(expectedVersion, r.Version),
			Action:          domain.ActionPayDeposit,
			DepositStatus:   domain.DepositAuthorized,
		})
	}
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "rentalID", id)
		return nil, err
	}
	logger.ExitMethod(method, "rentalID", id, "version", r.Version)
	return r, nil
}

// CheckOut hands the item over. The store re-checks capacity for this
// rental's quantity before the status changes.
func (s *rentalService) CheckOut(ctx context.Context, id uuid.UUID, expectedVersion int64, input domain.ReportInput) (*domain.RentalBooking, error) {
	const method = "rentalService.CheckOut"
	logger.EnterMethod(method, "rentalID", id, "expectedVersion", expectedVersion)

	r, err := s.checkOut(ctx, id, expectedVersion, input)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "rentalID", id)
		return nil, err
	}
	logger.ExitMethod(method, "rentalID", id, "version", r.Version)
	return r, nil
}

func (s *rentalService) checkOut(ctx context.Context, id uuid.UUID, expectedVersion int64, input domain.ReportInput) (*domain.RentalBooking, error) {
	r, err := s.store.GetRental(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == domain.StatusPendingDeposit {
		res, err := s.store.GetResource(ctx, r.ResourceID)
		if err != nil {
			return nil, err
		}
		policy, err := policyFor(ctx, s.store, res.BusinessID)
		if err != nil {
			return nil, err
		}
		if !policy.AllowCheckoutWithoutDeposit {
			return nil, &domain.InvalidTransitionError{
				ReservationID: r.ID,
				From:          r.Status,
				Action:        domain.ActionCheckOut,
				Detail:        "deposit not paid",
			}
		}
	}

	report := domain.NewConditionReport(r.ID, domain.ReportCheckout, input, s.opts.now())
	return s.transition(ctx, r, repository.RentalTransition{
		ID:              id,
		ExpectedVersion: versionOrCurrent(expectedVersion, r.Version),
		Action:          domain.ActionCheckOut,
		Report:          &report,
	})
}

// ProcessReturn settles fees against the deposit. A rental whose deposit is
// refunded in full is completed right away.
func (s *rentalService) ProcessReturn(ctx context.Context, id uuid.UUID, expectedVersion int64, input domain.ReportInput, damageCents int64) (*domain.RentalBooking, error) {
	const method = "rentalService.ProcessReturn"
	logger.EnterMethod(method, "rentalID", id, "expectedVersion", expectedVersion, "damageCents", damageCents)

	r, err := s.processReturn(ctx, id, expectedVersion, input, damageCents)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "rentalID", id)
		return nil, err
	}
	logger.ExitMethod(method, "rentalID", id, "status", r.Status,
		"lateFeeCents", r.LateFeeCents, "damageFeeCents", r.DamageFeeCents)
	return r, nil
}

func (s *rentalService) processReturn(ctx context.Context, id uuid.UUID, expectedVersion int64, input domain.ReportInput, damageCents int64) (*domain.RentalBooking, error) {
	if damageCents < 0 {
		return nil, domain.NewPolicyViolation("damage_amount", "damage amount cannot be negative")
	}
	r, err := s.store.GetRental(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := guard(domain.RentalLifecycle, r.ID, r.Status, domain.ActionReturn); err != nil {
		return nil, err
	}

	now := s.opts.now()
	settled := utils.SettleReturn(r, damageCents, now)
	deposit := domain.DepositCaptured
	if settled.RefundCents == r.DepositCents {
		deposit = domain.DepositRefunded
	}
	report := domain.NewConditionReport(r.ID, domain.ReportReturn, input, now)
	refund := settled.RefundCents

	r, err = s.transition(ctx, r, repository.RentalTransition{
		ID:                 id,
		ExpectedVersion:    versionOrCurrent(expectedVersion, r.Version),
		Action:             domain.ActionReturn,
		DepositStatus:      deposit,
		LateFeeCents:       settled.LateFeeCents,
		DamageFeeCents:     settled.DamageFeeCents,
		DepositRefundCents: &refund,
		Report:             &report,
	})
	if err != nil {
		return nil, err
	}
	if !r.FullRefund() {
		return r, nil
	}

	// the return is already stored; a failed completion leaves it for CompleteRental
	completed, err := s.transition(ctx, r, repository.RentalTransition{
		ID:              id,
		ExpectedVersion: r.Version,
		Action:          domain.ActionComplete,
	})
	if err != nil {
		logger.Warn("Auto-complete after return failed", "rentalID", id, "version", r.Version, "error", err)
		return r, nil
	}
	return completed, nil
}

func (s *rentalService) CompleteRental(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.RentalBooking, error) {
	const method = "rentalService.CompleteRental"
	logger.EnterMethod(method, "rentalID", id, "expectedVersion", expectedVersion)

	r, err := s.store.GetRental(ctx, id)
	if err == nil {
		r, err = s.transition(ctx, r, repository.RentalTransition{
			ID:              id,
			ExpectedVersion: versionOrCurrent(expectedVersion, r.Version),
			Action:          domain.ActionComplete,
		})
	}
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "rentalID", id)
		return nil, err
	}
	logger.ExitMethod(method, "rentalID", id, "version", r.Version)
	return r, nil
}

func (s *rentalService) CancelRental(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string) (*domain.RentalBooking, error) {
	const method = "rentalService.CancelRental"
	logger.EnterMethod(method, "rentalID", id, "expectedVersion", expectedVersion)

	r, err := s.store.GetRental(ctx, id)
	if err == nil {
		r, err = s.transition(ctx, r, repository.RentalTransition{
			ID:                 id,
			ExpectedVersion:    versionOrCurrent(expectedVersion, r.Version),
			Action:             domain.ActionCancel,
			CancellationReason: reason,
		})
	}
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "rentalID", id)
		return nil, err
	}
	logger.ExitMethod(method, "rentalID", id, "version", r.Version)
	return r, nil
}

func (s *rentalService) ConditionReports(ctx context.Context, id uuid.UUID) ([]domain.ConditionReport, error) {
	if _, err := s.store.GetRental(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListReports(ctx, id)
}

func (s *rentalService) transition(ctx context.Context, prev *domain.RentalBooking, t repository.RentalTransition) (*domain.RentalBooking, error) {
	rule, err := guard(domain.RentalLifecycle, prev.ID, prev.Status, t.Action)
	if err != nil {
		return nil, err
	}
	t.Now = s.opts.now()
	if rule.RecheckCapacity {
		if err := s.withLimits(ctx, prev, &t); err != nil {
			return nil, err
		}
	}
	if t.Report != nil {
		t.Report.RecordedAt = t.Now
	}

	r, err := s.store.TransitionRental(ctx, t)
	if err != nil {
		return nil, err
	}
	if rule.Intent != "" {
		s.opts.emitter.Emit(domain.NewEvent(rule.Intent, &r.Reservation, nil, t.Now))
	}
	return r, nil
}

// withLimits copies the business policy's buffer and daily limit onto t. A
// pending rental was never counted against either, so both apply once it
// starts to block.
func (s *rentalService) withLimits(ctx context.Context, r *domain.RentalBooking, t *repository.RentalTransition) error {
	res, err := s.store.GetResource(ctx, r.ResourceID)
	if err != nil {
		return err
	}
	policy, err := policyFor(ctx, s.store, res.BusinessID)
	if err != nil {
		return err
	}
	t.Buffer = policy.Buffer()
	t.DailyLimit = policy.MaxDailyReservations
	t.Day = dayOf(r.Start, res.Location())
	return nil
}

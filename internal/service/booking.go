package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/idempotency"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type bookingService struct {
	store repository.Store
	opts  options
}

func NewBookingService(store repository.Store, opts ...Option) BookingService {
	return &bookingService{store: store, opts: newOptions(opts)}
}

func (s *bookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	const method = "bookingService.CreateBooking"
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
	b, err := createOnce(ctx, s.opts.idem, key,
		func(id uuid.UUID) (*domain.Booking, error) { return s.store.GetBooking(ctx, id) },
		func() (*domain.Booking, uuid.UUID, error) {
			b, err := s.create(ctx, res, req)
			if err != nil {
				return nil, uuid.Nil, err
			}
			return b, b.ID, nil
		},
	)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "resourceID", req.ResourceID)
		return nil, err
	}

	logger.ExitMethod(method, "bookingID", b.ID, "status", b.Status)
	return b, nil
}

func (s *bookingService) create(ctx context.Context, res *domain.Resource, req CreateBookingRequest) (*domain.Booking, error) {
	policy, err := policyFor(ctx, s.store, res.BusinessID)
	if err != nil {
		return nil, err
	}
	now := s.opts.now()
	if err := policy.CheckDuration(req.Interval.Duration()); err != nil {
		return nil, err
	}
	if err := policy.CheckAdvance(req.Interval.Start, now); err != nil {
		return nil, err
	}

	qty := max(req.Quantity, 1)
	if qty > res.EffectiveCapacity() {
		return nil, &domain.InventoryExhaustedError{ResourceID: res.ID, Requested: qty, Remaining: res.EffectiveCapacity()}
	}

	status := domain.StatusPending
	if policy.AutoConfirm {
		status = domain.StatusConfirmed
	}
	b := &domain.Booking{
		Reservation: domain.Reservation{
			ResourceID: res.ID,
			Interval:   req.Interval,
			Status:     status,
			Quantity:   qty,
		},
		CustomerID: req.CustomerID,
		ServiceID:  req.ServiceID,
	}
	err = s.store.CreateBooking(ctx, b, repository.CreateOptions{
		Now:        now,
		Buffer:     policy.Buffer(),
		DailyLimit: policy.MaxDailyReservations,
		Day:        dayOf(req.Interval.Start, res.Location()),
	})
	if err != nil {
		return nil, err
	}

	s.opts.emitter.Emit(domain.NewEvent(domain.EventReservationCreated, &b.Reservation, nil, now))
	if b.Status == domain.StatusConfirmed {
		s.opts.emitter.Emit(domain.NewEvent(domain.EventReservationConfirmed, &b.Reservation, nil, now))
	}
	return b, nil
}

func (s *bookingService) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// ConfirmBooking is a no-op success on an already confirmed booking.
func (s *bookingService) ConfirmBooking(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Booking, error) {
	const method = "bookingService.ConfirmBooking"
	logger.EnterMethod(method, "bookingID", id, "expectedVersion", expectedVersion)

	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "bookingID", id)
		return nil, err
	}
	if b.Status == domain.StatusConfirmed {
		logger.ExitMethod(method, "bookingID", id, "alreadyConfirmed", true)
		return b, nil
	}

	b, err = s.transition(ctx, b, repository.BookingTransition{
		ID:              id,
		ExpectedVersion: versionOrCurrent(expectedVersion, b.Version),
		Action:          domain.ActionConfirm,
	})
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "bookingID", id)
		return nil, err
	}
	logger.ExitMethod(method, "bookingID", id, "version", b.Version)
	return b, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string, by Actor) (*domain.Booking, error) {
	const method = "bookingService.CancelBooking"
	logger.EnterMethod(method, "bookingID", id, "expectedVersion", expectedVersion, "by", by)

	b, err := s.cancel(ctx, id, expectedVersion, reason, by)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "bookingID", id)
		return nil, err
	}
	logger.ExitMethod(method, "bookingID", id, "version", b.Version)
	return b, nil
}

func (s *bookingService) cancel(ctx context.Context, id uuid.UUID, expectedVersion int64, reason string, by Actor) (*domain.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := guard(domain.BookingLifecycle, b.ID, b.Status, domain.ActionCancel); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domain.NewPolicyViolation("cancellation_reason", "a reason is required to cancel")
	}

	if by != ActorStaff {
		res, err := s.store.GetResource(ctx, b.ResourceID)
		if err != nil {
			return nil, err
		}
		policy, err := policyFor(ctx, s.store, res.BusinessID)
		if err != nil {
			return nil, err
		}
		if window := policy.CancellationWindow(); window > 0 {
			if deadline := b.Start.Add(-window); s.opts.now().After(deadline) {
				return nil, domain.NewPolicyViolation("cancellation_window",
					"cancellations close %d minutes before the start", policy.CancellationWindowMins)
			}
		}
	}

	return s.transition(ctx, b, repository.BookingTransition{
		ID:                 id,
		ExpectedVersion:    versionOrCurrent(expectedVersion, b.Version),
		Action:             domain.ActionCancel,
		CancellationReason: reason,
	})
}

func (s *bookingService) CompleteBooking(ctx context.Context, id uuid.UUID, expectedVersion int64) (*domain.Booking, error) {
	const method = "bookingService.CompleteBooking"
	logger.EnterMethod(method, "bookingID", id, "expectedVersion", expectedVersion)

	b, err := s.store.GetBooking(ctx, id)
	if err == nil {
		b, err = s.transition(ctx, b, repository.BookingTransition{
			ID:              id,
			ExpectedVersion: versionOrCurrent(expectedVersion, b.Version),
			Action:          domain.ActionComplete,
		})
	}
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "bookingID", id)
		return nil, err
	}
	logger.ExitMethod(method, "bookingID", id, "version", b.Version)
	return b, nil
}

// RescheduleBooking moves the booking in place. On any failure the stored
// interval is left untouched.
func (s *bookingService) RescheduleBooking(ctx context.Context, id uuid.UUID, expectedVersion int64, iv domain.Interval) (*domain.Booking, error) {
	const method = "bookingService.RescheduleBooking"
	logger.EnterMethod(method, "bookingID", id, "expectedVersion", expectedVersion, "interval", iv)

	b, err := s.reschedule(ctx, id, expectedVersion, iv)
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "bookingID", id)
		return nil, err
	}
	logger.ExitMethod(method, "bookingID", id, "version", b.Version)
	return b, nil
}

func (s *bookingService) reschedule(ctx context.Context, id uuid.UUID, expectedVersion int64, iv domain.Interval) (*domain.Booking, error) {
	if err := iv.Validate(); err != nil {
		return nil, err
	}
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := guard(domain.BookingLifecycle, b.ID, b.Status, domain.ActionReschedule); err != nil {
		return nil, err
	}
	res, err := s.store.GetResource(ctx, b.ResourceID)
	if err != nil {
		return nil, err
	}
	policy, err := policyFor(ctx, s.store, res.BusinessID)
	if err != nil {
		return nil, err
	}
	if err := policy.CheckDuration(iv.Duration()); err != nil {
		return nil, err
	}
	if err := policy.CheckAdvance(iv.Start, s.opts.now()); err != nil {
		return nil, err
	}

	return s.transition(ctx, b, repository.BookingTransition{
		ID:              id,
		ExpectedVersion: versionOrCurrent(expectedVersion, b.Version),
		Action:          domain.ActionReschedule,
		NewInterval:     &iv,
		Buffer:          policy.Buffer(),
	})
}

// DeleteBusiness marks every booking of the business business_deleted. It is
// the only path into that state.
func (s *bookingService) DeleteBusiness(ctx context.Context, businessID uuid.UUID) (int64, error) {
	const method = "bookingService.DeleteBusiness"
	logger.EnterMethod(method, "businessID", businessID)

	n, err := s.store.MarkBusinessDeleted(ctx, businessID, s.opts.now())
	if err != nil {
		logger.ExitMethodWithError(method, err, false, "businessID", businessID)
		return 0, err
	}
	logger.ExitMethod(method, "businessID", businessID, "bookings", n)
	return n, nil
}

// transition applies t through the store and emits the rule's intent. prev is
// the booking as read by the caller; its status picks the rule.
func (s *bookingService) transition(ctx context.Context, prev *domain.Booking, t repository.BookingTransition) (*domain.Booking, error) {
	rule, err := guard(domain.BookingLifecycle, prev.ID, prev.Status, t.Action)
	if err != nil {
		return nil, err
	}
	t.Now = s.opts.now()
	old := prev.Interval

	b, err := s.store.TransitionBooking(ctx, t)
	if err != nil {
		return nil, err
	}

	if rule.Intent != "" {
		var oldIv *domain.Interval
		if t.Action == domain.ActionReschedule {
			oldIv = &old
		}
		s.opts.emitter.Emit(domain.NewEvent(rule.Intent, &b.Reservation, oldIv, t.Now))
	}
	return b, nil
}

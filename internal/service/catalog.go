package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type catalogService struct {
	store repository.Store
	opts  options
}

func NewCatalogService(store repository.Store, opts ...Option) CatalogService {
	return &catalogService{store: store, opts: newOptions(opts)}
}

func (s *catalogService) CreateResource(ctx context.Context, r *domain.Resource) error {
	const method = "catalogService.CreateResource"
	logger.EnterMethod(method, "businessID", r.BusinessID, "kind", r.Kind, "name", r.Name)

	if err := s.normalizeResource(r); err != nil {
		logger.ExitMethodWithError(method, err, true, "businessID", r.BusinessID)
		return err
	}
	if err := s.store.CreateResource(ctx, r); err != nil {
		logger.ExitMethodWithError(method, err, false, "businessID", r.BusinessID)
		return err
	}

	logger.ExitMethod(method, "resourceID", r.ID)
	return nil
}

func (s *catalogService) normalizeResource(r *domain.Resource) error {
	if r.BusinessID == uuid.Nil {
		return domain.NewPolicyViolation("business", "business id is required")
	}
	if r.Name == "" {
		return domain.NewPolicyViolation("name", "name is required")
	}

	switch r.Kind {
	case domain.ResourceKindStaff:
		r.Capacity = 1
		r.RentalTerms = nil
	case domain.ResourceKindRentalItem:
		if r.Capacity < 1 {
			r.Capacity = 1
		}
		if err := validateTerms(r.RentalTerms); err != nil {
			return err
		}
	default:
		return domain.NewPolicyViolation("resource_kind", "unknown resource kind %q", r.Kind)
	}

	if r.Timezone == "" {
		r.Timezone = s.opts.loc.String()
	}
	if _, err := time.LoadLocation(r.Timezone); err != nil {
		return domain.NewPolicyViolation("timezone", "unknown timezone %q", r.Timezone)
	}
	return nil
}

func validateTerms(t *domain.RentalTerms) error {
	switch {
	case t == nil:
		return domain.NewPolicyViolation("rental_terms", "rental items need rental terms")
	case !t.RateType.Valid():
		return domain.NewPolicyViolation("rental_terms", "unknown rate type %q", t.RateType)
	case t.RateCents <= 0:
		return domain.NewPolicyViolation("rental_terms", "rate must be positive")
	case t.DepositCents < 0:
		return domain.NewPolicyViolation("rental_terms", "deposit must not be negative")
	case t.LateFeePercentage.IsNegative():
		return domain.NewPolicyViolation("rental_terms", "late fee percentage must not be negative")
	}
	return nil
}

func (s *catalogService) GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	return s.store.GetResource(ctx, id)
}

func (s *catalogService) ListResources(ctx context.Context, businessID uuid.UUID) ([]domain.Resource, error) {
	return s.store.ListResources(ctx, businessID)
}

func (s *catalogService) SetCapacity(ctx context.Context, resourceID uuid.UUID, capacity int) (*domain.Resource, error) {
	const method = "catalogService.SetCapacity"
	logger.EnterMethod(method, "resourceID", resourceID, "capacity", capacity)

	res, err := s.store.GetResource(ctx, resourceID)
	switch {
	case err != nil:
	case capacity < 1:
		err = domain.NewPolicyViolation("capacity", "capacity must be at least 1")
	case res.Kind == domain.ResourceKindStaff && capacity != 1:
		err = domain.NewPolicyViolation("capacity", "staff capacity is always 1")
	default:
		res, err = s.store.SetCapacity(ctx, resourceID, capacity, s.opts.now())
	}
	if err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "resourceID", resourceID)
		return nil, err
	}

	logger.ExitMethod(method, "resourceID", resourceID, "capacity", res.Capacity)
	return res, nil
}

func (s *catalogService) GetPolicy(ctx context.Context, businessID uuid.UUID) (domain.BookingPolicy, error) {
	return policyFor(ctx, s.store, businessID)
}

func (s *catalogService) SavePolicy(ctx context.Context, p *domain.BookingPolicy) error {
	const method = "catalogService.SavePolicy"
	logger.EnterMethod(method, "businessID", p.BusinessID)

	if err := validatePolicy(p); err != nil {
		logger.ExitMethodWithError(method, err, true, "businessID", p.BusinessID)
		return err
	}
	if err := s.store.SavePolicy(ctx, p); err != nil {
		logger.ExitMethodWithError(method, err, false, "businessID", p.BusinessID)
		return err
	}

	logger.ExitMethod(method, "businessID", p.BusinessID)
	return nil
}

func validatePolicy(p *domain.BookingPolicy) error {
	if p.BusinessID == uuid.Nil {
		return domain.NewPolicyViolation("business", "business id is required")
	}
	for name, v := range map[string]int{
		"buffer_mins":              p.BufferMins,
		"min_duration_mins":        p.MinDurationMins,
		"max_duration_mins":        p.MaxDurationMins,
		"min_advance_mins":         p.MinAdvanceMins,
		"max_advance_days":         p.MaxAdvanceDays,
		"max_daily_reservations":   p.MaxDailyReservations,
		"interval_mins":            p.IntervalMins,
		"cancellation_window_mins": p.CancellationWindowMins,
	} {
		if v < 0 {
			return domain.NewPolicyViolation(name, "must not be negative")
		}
	}
	if p.MinDurationMins > 0 && p.MaxDurationMins > 0 && p.MaxDurationMins < p.MinDurationMins {
		return domain.NewPolicyViolation("max_duration_mins", "%d is below the minimum of %d", p.MaxDurationMins, p.MinDurationMins)
	}
	if p.UseFixedIntervals && p.IntervalMins == 0 {
		return domain.NewPolicyViolation("interval_mins", "fixed intervals need an interval")
	}
	return nil
}

func (s *catalogService) GetTemplate(ctx context.Context, resourceID uuid.UUID) (*domain.ScheduleTemplate, error) {
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	t, err := s.store.GetTemplate(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.NotFound("schedule template", resourceID)
	}
	return t, nil
}

func (s *catalogService) SaveTemplate(ctx context.Context, t *domain.ScheduleTemplate) error {
	const method = "catalogService.SaveTemplate"
	logger.EnterMethod(method, "resourceID", t.ResourceID)

	if _, err := s.store.GetResource(ctx, t.ResourceID); err != nil {
		logger.ExitMethodWithError(method, err, isExpected(err), "resourceID", t.ResourceID)
		return err
	}
	if err := validateTemplate(t); err != nil {
		logger.ExitMethodWithError(method, err, true, "resourceID", t.ResourceID)
		return err
	}
	t.UpdatedAt = s.opts.now()
	if err := s.store.SaveTemplate(ctx, t); err != nil {
		logger.ExitMethodWithError(method, err, false, "resourceID", t.ResourceID)
		return err
	}

	logger.ExitMethod(method, "resourceID", t.ResourceID)
	return nil
}

func validateTemplate(t *domain.ScheduleTemplate) error {
	for day, windows := range t.Weekly {
		if day < time.Sunday || day > time.Saturday {
			return domain.NewPolicyViolation("schedule", "unknown weekday %d", day)
		}
		for _, w := range windows {
			if !w.Valid() {
				return domain.NewPolicyViolation("schedule", "invalid window %s-%s on %s", w.Start, w.End, day)
			}
		}
	}
	for key, windows := range t.Exceptions {
		if _, err := time.Parse("2006-01-02", key); err != nil {
			return domain.NewPolicyViolation("schedule", "exception date %q is not yyyy-mm-dd", key)
		}
		for _, w := range windows {
			if !w.Valid() {
				return domain.NewPolicyViolation("schedule", "invalid window %s-%s on %s", w.Start, w.End, key)
			}
		}
	}
	return nil
}

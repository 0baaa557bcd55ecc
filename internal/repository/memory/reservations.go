package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/utils"
)

// reservationsOf returns every reservation on a resource. Caller holds s.mu.
func (s *Store) reservationsOf(resourceID uuid.UUID) []domain.Reservation {
	var out []domain.Reservation
	for _, b := range s.bookings {
		if b.ResourceID == resourceID {
			out = append(out, b.Reservation)
		}
	}
	for _, r := range s.rentals {
		if r.ResourceID == resourceID {
			out = append(out, r.Reservation)
		}
	}
	return out
}

// admit runs the capacity and daily-limit checks for cand. Caller holds the
// resource lock.
func (s *Store) admit(res *domain.Resource, cand domain.Reservation, opts repository.CreateOptions, exclude uuid.UUID) error {
	s.mu.RLock()
	existing := s.reservationsOf(res.ID)
	s.mu.RUnlock()

	if utils.WouldConflict(res.EffectiveCapacity(), cand.Qty(), existing, cand.Interval.Pad(opts.Buffer), opts.Now, exclude) {
		return domain.NewConflictError(res.ID, cand.Interval, "capacity exhausted")
	}
	if opts.DailyLimit > 0 {
		n := 0
		for i := range existing {
			r := &existing[i]
			if r.ID == exclude || !r.IsBlocking(opts.Now) {
				continue
			}
			if !r.Start.Before(opts.Day.Start) && r.Start.Before(opts.Day.End) {
				n++
			}
		}
		if n >= opts.DailyLimit {
			return domain.NewConflictError(res.ID, cand.Interval, "daily reservation limit reached")
		}
	}
	return nil
}

func stamp(r *domain.Reservation, kind domain.ReservationKind, res *domain.Resource, now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.BusinessID == uuid.Nil {
		r.BusinessID = res.BusinessID
	}
	if r.Quantity < 1 {
		r.Quantity = 1
	}
	r.Kind = kind
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
}

func (s *Store) CreateBooking(ctx context.Context, b *domain.Booking, opts repository.CreateOptions) error {
	if err := b.Interval.Validate(); err != nil {
		return err
	}
	res, err := s.GetResource(ctx, b.ResourceID)
	if err != nil {
		return err
	}
	lock := s.resourceLock(res.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.admit(res, b.Reservation, opts, uuid.Nil); err != nil {
		return err
	}
	stamp(&b.Reservation, domain.KindBooking, res, opts.Now)

	s.mu.Lock()
	s.bookings[b.ID] = *b
	s.mu.Unlock()
	return nil
}

func (s *Store) CreateRental(ctx context.Context, r *domain.RentalBooking, opts repository.CreateOptions) error {
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	res, err := s.GetResource(ctx, r.ResourceID)
	if err != nil {
		return err
	}
	lock := s.resourceLock(res.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.admit(res, r.Reservation, opts, uuid.Nil); err != nil {
		return err
	}
	stamp(&r.Reservation, domain.KindRental, res, opts.Now)

	s.mu.Lock()
	s.rentals[r.ID] = *r
	s.mu.Unlock()
	return nil
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.NotFound("booking", id)
	}
	return &b, nil
}

func (s *Store) GetRental(ctx context.Context, id uuid.UUID) (*domain.RentalBooking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rentals[id]
	if !ok {
		return nil, domain.NotFound("rental", id)
	}
	return &r, nil
}

func (s *Store) TransitionBooking(ctx context.Context, t repository.BookingTransition) (*domain.Booking, error) {
	cur, err := s.GetBooking(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	lock := s.resourceLock(cur.ResourceID)
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// re-read under the resource lock
	if cur, err = s.GetBooking(ctx, t.ID); err != nil {
		return nil, err
	}
	rule, err := t.Resolve(cur)
	if err != nil {
		return nil, err
	}
	if rule.RecheckCapacity {
		res, err := s.GetResource(ctx, cur.ResourceID)
		if err != nil {
			return nil, err
		}
		cand := cur.Reservation
		cand.Interval = t.Candidate(cur)
		if err := s.admit(res, cand, repository.CreateOptions{Now: t.Now, Buffer: t.Buffer}, cur.ID); err != nil {
			return nil, err
		}
	}
	t.Apply(cur, rule)

	s.mu.Lock()
	s.bookings[cur.ID] = *cur
	s.mu.Unlock()
	return cur, nil
}

func (s *Store) TransitionRental(ctx context.Context, t repository.RentalTransition) (*domain.RentalBooking, error) {
	cur, err := s.GetRental(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	lock := s.resourceLock(cur.ResourceID)
	lock.Lock()
	defer lock.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cur, err = s.GetRental(ctx, t.ID); err != nil {
		return nil, err
	}
	rule, err := t.Resolve(cur)
	if err != nil {
		return nil, err
	}
	if rule.RecheckCapacity {
		res, err := s.GetResource(ctx, cur.ResourceID)
		if err != nil {
			return nil, err
		}
		if err := s.admit(res, cur.Reservation, t.CreateOptions(), cur.ID); err != nil {
			return nil, err
		}
	}
	t.Apply(cur, rule)

	s.mu.Lock()
	s.rentals[cur.ID] = *cur
	if t.Report != nil {
		s.reports[cur.ID] = append(s.reports[cur.ID], *t.Report)
	}
	s.mu.Unlock()
	return cur, nil
}

func (s *Store) ListBlocking(ctx context.Context, resourceID uuid.UUID, window domain.Interval, now time.Time) ([]domain.Reservation, error) {
	s.mu.RLock()
	all := s.reservationsOf(resourceID)
	s.mu.RUnlock()

	var out []domain.Reservation
	for i := range all {
		r := &all[i]
		if r.IsBlocking(now) && r.EffectiveInterval(now).Overlaps(window) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) ListEndedBefore(ctx context.Context, kind domain.ReservationKind, status domain.Status, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	var out []domain.Reservation
	if kind == domain.KindBooking {
		for _, b := range s.bookings {
			if b.Status == status && b.End.Before(cutoff) {
				out = append(out, b.Reservation)
			}
		}
	} else {
		for _, r := range s.rentals {
			if r.Status == status && r.End.Before(cutoff) {
				out = append(out, r.Reservation)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkBusinessDeleted(ctx context.Context, businessID uuid.UUID, now time.Time) (int64, error) {
	s.mu.RLock()
	seen := make(map[uuid.UUID]bool)
	var resourceIDs []uuid.UUID
	for _, b := range s.bookings {
		if b.BusinessID == businessID && !seen[b.ResourceID] {
			seen[b.ResourceID] = true
			resourceIDs = append(resourceIDs, b.ResourceID)
		}
	}
	s.mu.RUnlock()

	// fixed lock order across resources
	sort.Slice(resourceIDs, func(i, j int) bool { return resourceIDs[i].String() < resourceIDs[j].String() })
	for _, id := range resourceIDs {
		l := s.resourceLock(id)
		l.Lock()
		defer l.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, b := range s.bookings {
		if b.BusinessID != businessID || !domain.BookingLifecycle.Allows(b.Status, domain.StatusBusinessDeleted) {
			continue
		}
		b.Status = domain.StatusBusinessDeleted
		b.Version++
		b.UpdatedAt = now
		s.bookings[id] = b
		n++
	}
	return n, nil
}

func (s *Store) SetCapacity(ctx context.Context, resourceID uuid.UUID, capacity int, now time.Time) (*domain.Resource, error) {
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	lock := s.resourceLock(resourceID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if peak := utils.PeakQuantity(s.reservationsOf(resourceID), now); peak > capacity {
		return nil, domain.NewConflictError(resourceID, domain.Interval{}, fmt.Sprintf("%d units already reserved", peak))
	}
	res := s.resources[resourceID]
	res.Capacity = capacity
	res.UpdatedAt = now
	s.resources[resourceID] = res
	return &res, nil
}

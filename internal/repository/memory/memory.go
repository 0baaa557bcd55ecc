// Package memory is a single-node implementation of the repository contracts.
// Writes that can change a resource's occupancy are serialized by a mutex
// scoped to that resource.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type Store struct {
	mu        sync.RWMutex
	resources map[uuid.UUID]domain.Resource
	policies  map[uuid.UUID]domain.BookingPolicy
	templates map[uuid.UUID]*domain.ScheduleTemplate
	bookings  map[uuid.UUID]domain.Booking
	rentals   map[uuid.UUID]domain.RentalBooking
	reports   map[uuid.UUID][]domain.ConditionReport

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		resources: make(map[uuid.UUID]domain.Resource),
		policies:  make(map[uuid.UUID]domain.BookingPolicy),
		templates: make(map[uuid.UUID]*domain.ScheduleTemplate),
		bookings:  make(map[uuid.UUID]domain.Booking),
		rentals:   make(map[uuid.UUID]domain.RentalBooking),
		reports:   make(map[uuid.UUID][]domain.ConditionReport),
		locks:     make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *Store) resourceLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) CreateResource(ctx context.Context, r *domain.Resource) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[r.ID] = *r
	return nil
}

func (s *Store) GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, domain.NotFound("resource", id)
	}
	return &r, nil
}

func (s *Store) ListResources(ctx context.Context, businessID uuid.UUID) ([]domain.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Resource
	for _, r := range s.resources {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetPolicy(ctx context.Context, businessID uuid.UUID) (*domain.BookingPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[businessID]
	if !ok {
		return nil, domain.NotFound("booking policy", businessID)
	}
	return &p, nil
}

func (s *Store) SavePolicy(ctx context.Context, p *domain.BookingPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.BusinessID] = *p
	return nil
}

func (s *Store) GetTemplate(ctx context.Context, resourceID uuid.UUID) (*domain.ScheduleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[resourceID].Clone(), nil
}

func (s *Store) SaveTemplate(ctx context.Context, t *domain.ScheduleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ResourceID] = t.Clone()
	return nil
}

func (s *Store) ListReports(ctx context.Context, rentalID uuid.UUID) ([]domain.ConditionReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ConditionReport(nil), s.reports[rentalID]...), nil
}

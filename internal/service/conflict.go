package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/utils"
)

// conflictDetector answers advisory questions. Only the store's create and
// transition decide; their answer can differ if a write lands in between.
type conflictDetector struct {
	store repository.Store
	opts  options
}

func NewConflictDetector(store repository.Store, opts ...Option) ConflictDetector {
	return &conflictDetector{store: store, opts: newOptions(opts)}
}

func (d *conflictDetector) load(ctx context.Context, resourceID uuid.UUID, iv domain.Interval) (*domain.Resource, []domain.Reservation, error) {
	if err := iv.Validate(); err != nil {
		return nil, nil, err
	}
	res, err := d.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, nil, err
	}
	reservations, err := d.store.ListBlocking(ctx, resourceID, iv, d.opts.now())
	if err != nil {
		return nil, nil, err
	}
	return res, reservations, nil
}

func (d *conflictDetector) WouldConflict(ctx context.Context, resourceID uuid.UUID, iv domain.Interval, quantity int, exclude uuid.UUID) (bool, error) {
	res, reservations, err := d.load(ctx, resourceID, iv)
	if err != nil {
		return false, err
	}
	return utils.WouldConflict(res.EffectiveCapacity(), quantity, reservations, iv, d.opts.now(), exclude), nil
}

func (d *conflictDetector) CapacityRemaining(ctx context.Context, resourceID uuid.UUID, iv domain.Interval) (int, error) {
	res, reservations, err := d.load(ctx, resourceID, iv)
	if err != nil {
		return 0, err
	}
	return utils.CapacityRemaining(res.EffectiveCapacity(), reservations, iv, d.opts.now(), uuid.Nil), nil
}

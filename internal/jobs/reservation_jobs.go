package jobs

import (
	"context"
	"errors"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
)

// CompletePastBookings moves confirmed bookings whose end has passed to completed.
func (jr *JobRunner) CompletePastBookings() {
	jr.runWithRecovery("CompletePastBookings", func() {
		n, err := jr.completePastBookings(context.Background())
		if err != nil {
			logger.Error("Failed to complete past bookings", "error", err)
			return
		}
		logger.Info("Completed past bookings", "count", n)
	})
}

func (jr *JobRunner) completePastBookings(ctx context.Context) (int, error) {
	due, err := jr.store.ListEndedBefore(ctx, domain.KindBooking, domain.StatusConfirmed, jr.now(), jr.config.Engine.JobBatchSize)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, r := range due {
		_, err := jr.bookings.CompleteBooking(ctx, r.ID, r.Version)
		switch {
		case err == nil:
			count++
		case errors.Is(err, domain.ErrStaleUpdate), errors.Is(err, domain.ErrInvalidTransition):
			// changed since listing; the next run sees the new state
			logger.Debug("Skipped booking", "bookingID", r.ID, "error", err)
		default:
			logger.Error("Failed to complete booking", "bookingID", r.ID, "error", err)
		}
	}
	return count, nil
}

// PublishOverdueRentals emits a rental.overdue intent for every checked out
// rental past its end. Consumers deduplicate by reservation id.
func (jr *JobRunner) PublishOverdueRentals() {
	jr.runWithRecovery("PublishOverdueRentals", func() {
		n, err := jr.publishOverdueRentals(context.Background())
		if err != nil {
			logger.Error("Failed to publish overdue rentals", "error", err)
			return
		}
		logger.Info("Published overdue rentals", "count", n)
	})
}

func (jr *JobRunner) publishOverdueRentals(ctx context.Context) (int, error) {
	now := jr.now()
	overdue, err := jr.store.ListEndedBefore(ctx, domain.KindRental, domain.StatusCheckedOut, now, jr.config.Engine.JobBatchSize)
	if err != nil {
		return 0, err
	}
	for i := range overdue {
		jr.emitter.Emit(domain.NewEvent(domain.EventRentalOverdue, &overdue[i], nil, now))
	}
	return len(overdue), nil
}

package jobs

import (
	"time"

	"github.com/brianlane/bizblasts-sub006/internal/config"
	"github.com/brianlane/bizblasts-sub006/internal/events"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	store    repository.ReservationStore
	bookings service.BookingService
	emitter  events.Emitter
	config   *config.Config
	now      func() time.Time
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(store repository.ReservationStore, bookings service.BookingService, emitter events.Emitter, cfg *config.Config) *JobRunner {
	return &JobRunner{
		store:    store,
		bookings: bookings,
		emitter:  emitter,
		config:   cfg,
		now:      time.Now,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	start := time.Now()
	jobFunc()
	logger.Info("Job completed", "job", jobName, "elapsed", time.Since(start))
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.CompletePastBookings()
	jr.PublishOverdueRentals()
}

package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brianlane/bizblasts-sub006/internal/jobs"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
)

// Scheduler manages cron job scheduling
type Scheduler struct {
	cron *cron.Cron
	jobs *jobs.JobRunner
}

// NewScheduler registers every reservation job. It fails on the first cron
// expression that does not parse.
func NewScheduler(jobRunner *jobs.JobRunner) (*Scheduler, error) {
	// UTC with seconds precision
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithSeconds(),
	)

	s := &Scheduler{
		cron: c,
		jobs: jobRunner,
	}
	if err := s.registerJobs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerJobs() error {
	cfg := s.jobs.Config().Scheduler

	for _, job := range []struct {
		name string
		expr string
		run  func()
	}{
		{"CompletePastBookings", cfg.CompletePastBookings, s.jobs.CompletePastBookings},
		{"PublishOverdueRentals", cfg.PublishOverdueRentals, s.jobs.PublishOverdueRentals},
	} {
		if _, err := s.cron.AddFunc(job.expr, job.run); err != nil {
			logger.Error("Failed to register job", "job", job.name, "expr", job.expr, "error", err)
			return fmt.Errorf("register %s: %w", job.name, err)
		}
	}

	logger.Info("All cron jobs registered successfully", "count", len(s.cron.Entries()))
	return nil
}

// Start begins the cron scheduler
func (s *Scheduler) Start() {
	logger.Info("Starting cron scheduler...")
	s.cron.Start()
}

// Stop waits for running jobs to finish
func (s *Scheduler) Stop() {
	logger.Info("Stopping cron scheduler...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Cron scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

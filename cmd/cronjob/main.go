package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/brianlane/bizblasts-sub006/internal/app"
	"github.com/brianlane/bizblasts-sub006/internal/config"
	"github.com/brianlane/bizblasts-sub006/internal/jobs"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'complete-past-bookings', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting reservation cronjob runner...", "log_level", cfg.Log.Level)

	ctx := context.Background()
	engine, err := app.Open(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize engine", "error", err)
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		engine.Close(closeCtx)
	}()

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(engine.Store, engine.Bookings, engine.Dispatcher, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		if !runJobOnce(jobRunner, *runOnce) {
			os.Exit(1)
		}
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		logger.Error("Failed to register jobs", "error", err)
		log.Fatalf("Failed to register jobs: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once. It reports false for an unknown job name.
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) bool {
	switch jobName {
	case "complete-past-bookings":
		jobRunner.CompletePastBookings()
	case "publish-overdue-rentals":
		jobRunner.PublishOverdueRentals()
	case "all":
		jobRunner.RunAll()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - complete-past-bookings\n")
		fmt.Printf("  - publish-overdue-rentals\n")
		fmt.Printf("  - all\n")
		return false
	}
	return true
}

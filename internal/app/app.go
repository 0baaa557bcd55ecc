// Package app wires configuration into stores, publishers and services for
// the binaries under cmd/.
package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/brianlane/bizblasts-sub006/internal/config"
	"github.com/brianlane/bizblasts-sub006/internal/events"
	"github.com/brianlane/bizblasts-sub006/internal/idempotency"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/repository/memory"
	"github.com/brianlane/bizblasts-sub006/internal/repository/postgres"
	"github.com/brianlane/bizblasts-sub006/internal/service"
)

// Engine holds everything a binary needs. Close releases it in reverse order.
type Engine struct {
	Store        repository.Store
	Dispatcher   *events.Dispatcher
	Availability service.AvailabilityService
	Conflicts    service.ConflictDetector
	Bookings     service.BookingService
	Rentals      service.RentalService
	Catalog      service.CatalogService

	closers []func() error
}

// Open connects the configured backends and builds the services.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	e := &Engine{}

	store, err := e.openStore(ctx, cfg)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.Store = store

	pub, err := openPublisher(cfg)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}
	e.closers = append(e.closers, pub.Close)
	e.Dispatcher = events.NewDispatcher(pub, cfg.Engine.EventBuffer)

	idem, err := e.openIdempotency(ctx, cfg)
	if err != nil {
		e.Close(ctx)
		return nil, err
	}

	opts := []service.Option{
		service.WithEmitter(e.Dispatcher),
		service.WithIdempotency(idem),
		service.WithLocation(cfg.Engine.Location()),
	}
	e.Availability = service.NewAvailabilityService(store, opts...)
	e.Conflicts = service.NewConflictDetector(store, opts...)
	e.Bookings = service.NewBookingService(store, opts...)
	e.Rentals = service.NewRentalService(store, opts...)
	e.Catalog = service.NewCatalogService(store, opts...)
	return e, nil
}

func (e *Engine) openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Engine.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage; reservations are lost on exit")
		return memory.NewStore(), nil
	}

	logger.Debug("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	e.closers = append(e.closers, db.Close)

	store := postgres.NewStore(db)
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		logger.Info("Database schema applied")
	}
	return store, nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if cfg.RabbitMQ.URL == "" {
		logger.Info("No RabbitMQ URL configured, logging reservation intents")
		return events.LogPublisher{}, nil
	}
	pub, err := events.NewRabbitMQPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	logger.Info("Publishing reservation intents", "exchange", cfg.RabbitMQ.Exchange)
	return pub, nil
}

func (e *Engine) openIdempotency(ctx context.Context, cfg *config.Config) (idempotency.Store, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("No Redis address configured, keeping idempotency keys in process")
		return idempotency.NewLocal(cfg.Engine.IdempotencyTTL()), nil
	}
	client, err := idempotency.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	e.closers = append(e.closers, client.Close)
	logger.Info("Redis connection established", "addr", cfg.Redis.Addr)
	return idempotency.NewRedisStore(client, cfg.Engine.IdempotencyTTL()), nil
}

// Close drains queued intents, then closes connections in reverse order.
func (e *Engine) Close(ctx context.Context) {
	if e.Dispatcher != nil {
		if err := e.Dispatcher.Close(ctx); err != nil {
			logger.Warn("Failed to drain intent queue", "error", err)
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
	e.closers = nil
}

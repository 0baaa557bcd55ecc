package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
	repository.ResourceRepository
	repository.PolicyRepository
	repository.ScheduleRepository
	repository.ConditionReportRepository
	repository.ReservationStore
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                        db,
		ResourceRepository:        NewResourceRepository(db),
		PolicyRepository:          NewPolicyRepository(db),
		ScheduleRepository:        NewScheduleRepository(db),
		ConditionReportRepository: NewConditionReportRepository(db),
		ReservationStore:          NewReservationStore(db),
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	logger.DatabaseCall("Migrate", "schema.sql")
	_, err := s.db.ExecContext(ctx, schema)
	logger.DatabaseResult("Migrate", 0, err)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const (
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// translate turns the Postgres errors that mean "someone else got there
// first" into a ConflictError. Everything else is returned unchanged.
func translate(err error, resourceID uuid.UUID, iv domain.Interval) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeExclusionViolation:
		return domain.NewConflictError(resourceID, iv, "overlapping reservation")
	case codeSerializationFailure, codeDeadlockDetected:
		return domain.NewConflictError(resourceID, iv, "concurrent write")
	}
	return err
}

// inTx runs fn in a read-committed transaction. Per-resource ordering comes
// from advisory locks taken inside fn, so each statement after the lock sees
// every previously committed write.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func lockResource(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID) error {
	query := `SELECT pg_advisory_xact_lock(hashtext($1))`
	logger.DatabaseCall("lockResource", query, "resource_id", resourceID)
	_, err := tx.ExecContext(ctx, query, resourceID.String())
	logger.DatabaseResult("lockResource", 0, err)
	if err != nil {
		return fmt.Errorf("lock resource %s: %w", resourceID, err)
	}
	return nil
}

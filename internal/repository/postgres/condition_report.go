package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type conditionReportRepository struct {
	db *sql.DB
}

func NewConditionReportRepository(db *sql.DB) repository.ConditionReportRepository {
	return &conditionReportRepository{db: db}
}

func (r *conditionReportRepository) ListReports(ctx context.Context, rentalID uuid.UUID) ([]domain.ConditionReport, error) {
	query := `SELECT id, rental_id, event, items, notes, damage_estimate_cents, recorded_at
	          FROM condition_reports WHERE rental_id = $1 ORDER BY recorded_at`
	logger.DatabaseCall("ListReports", query, "rental_id", rentalID)
	rows, err := r.db.QueryContext(ctx, query, rentalID)
	if err != nil {
		logger.DatabaseResult("ListReports", 0, err)
		return nil, fmt.Errorf("list condition reports: %w", err)
	}
	defer rows.Close()

	var out []domain.ConditionReport
	for rows.Next() {
		var (
			rep   domain.ConditionReport
			items []byte
		)
		if err := rows.Scan(&rep.ID, &rep.RentalID, &rep.Event, &items, &rep.Notes, &rep.DamageEstimateCents, &rep.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan condition report: %w", err)
		}
		if err := json.Unmarshal(items, &rep.Items); err != nil {
			return nil, fmt.Errorf("decode checklist: %w", err)
		}
		out = append(out, rep)
	}
	logger.DatabaseResult("ListReports", int64(len(out)), rows.Err())
	return out, rows.Err()
}

// insertReport runs inside the transition's transaction.
func insertReport(ctx context.Context, tx *sql.Tx, rep *domain.ConditionReport) error {
	items, err := json.Marshal(rep.Items)
	if err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	query := `INSERT INTO condition_reports (id, rental_id, event, items, notes, damage_estimate_cents, recorded_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	logger.DatabaseCall("insertReport", query, "rental_id", rep.RentalID, "event", rep.Event)
	_, err = tx.ExecContext(ctx, query, rep.ID, rep.RentalID, rep.Event, items, rep.Notes, rep.DamageEstimateCents, rep.RecordedAt)
	logger.DatabaseResult("insertReport", 1, err)
	if err != nil {
		return fmt.Errorf("insert condition report: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type scheduleRepository struct {
	db *sql.DB
}

func NewScheduleRepository(db *sql.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) GetTemplate(ctx context.Context, resourceID uuid.UUID) (*domain.ScheduleTemplate, error) {
	query := `SELECT weekly, exceptions, updated_at FROM schedule_templates WHERE resource_id = $1`
	logger.DatabaseCall("GetTemplate", query, "resource_id", resourceID)

	var weekly, exceptions []byte
	t := &domain.ScheduleTemplate{ResourceID: resourceID}
	err := r.db.QueryRowContext(ctx, query, resourceID).Scan(&weekly, &exceptions, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("GetTemplate", 0, nil)
		return nil, nil
	}
	logger.DatabaseResult("GetTemplate", 1, err)
	if err != nil {
		return nil, fmt.Errorf("get schedule template: %w", err)
	}

	if err := json.Unmarshal(weekly, &t.Weekly); err != nil {
		return nil, fmt.Errorf("decode weekly windows: %w", err)
	}
	if err := json.Unmarshal(exceptions, &t.Exceptions); err != nil {
		return nil, fmt.Errorf("decode exceptions: %w", err)
	}
	return t, nil
}

func (r *scheduleRepository) SaveTemplate(ctx context.Context, t *domain.ScheduleTemplate) error {
	weekly, err := json.Marshal(nonNilWeekly(t.Weekly))
	if err != nil {
		return fmt.Errorf("encode weekly windows: %w", err)
	}
	exceptions, err := json.Marshal(nonNilExceptions(t.Exceptions))
	if err != nil {
		return fmt.Errorf("encode exceptions: %w", err)
	}
	t.UpdatedAt = time.Now().UTC()

	query := `INSERT INTO schedule_templates (resource_id, weekly, exceptions, updated_at) VALUES ($1, $2, $3, $4)
	          ON CONFLICT (resource_id) DO UPDATE SET weekly = EXCLUDED.weekly, exceptions = EXCLUDED.exceptions, updated_at = EXCLUDED.updated_at`
	logger.DatabaseCall("SaveTemplate", query, "resource_id", t.ResourceID)
	_, err = r.db.ExecContext(ctx, query, t.ResourceID, weekly, exceptions, t.UpdatedAt)
	logger.DatabaseResult("SaveTemplate", 1, err)
	if err != nil {
		return fmt.Errorf("save schedule template: %w", err)
	}
	return nil
}

func nonNilWeekly(m map[time.Weekday][]domain.Window) map[time.Weekday][]domain.Window {
	if m == nil {
		return map[time.Weekday][]domain.Window{}
	}
	return m
}

func nonNilExceptions(m map[string][]domain.Window) map[string][]domain.Window {
	if m == nil {
		return map[string][]domain.Window{}
	}
	return m
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type policyRepository struct {
	db *sql.DB
}

func NewPolicyRepository(db *sql.DB) repository.PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) GetPolicy(ctx context.Context, businessID uuid.UUID) (*domain.BookingPolicy, error) {
	query := `SELECT business_id, buffer_mins, min_duration_mins, max_duration_mins, min_advance_mins, max_advance_days,
	                 max_daily_reservations, use_fixed_intervals, interval_mins, cancellation_window_mins,
	                 auto_confirm, allow_checkout_without_deposit
	          FROM booking_policies WHERE business_id = $1`
	logger.DatabaseCall("GetPolicy", query, "business_id", businessID)

	p := &domain.BookingPolicy{}
	err := r.db.QueryRowContext(ctx, query, businessID).Scan(&p.BusinessID, &p.BufferMins, &p.MinDurationMins,
		&p.MaxDurationMins, &p.MinAdvanceMins, &p.MaxAdvanceDays, &p.MaxDailyReservations, &p.UseFixedIntervals,
		&p.IntervalMins, &p.CancellationWindowMins, &p.AutoConfirm, &p.AllowCheckoutWithoutDeposit)
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("GetPolicy", 0, nil)
		return nil, domain.NotFound("booking policy", businessID)
	}
	logger.DatabaseResult("GetPolicy", 1, err)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return p, nil
}

// SavePolicy replaces the business's policy wholesale.
func (r *policyRepository) SavePolicy(ctx context.Context, p *domain.BookingPolicy) error {
	query := `INSERT INTO booking_policies (business_id, buffer_mins, min_duration_mins, max_duration_mins, min_advance_mins,
	                 max_advance_days, max_daily_reservations, use_fixed_intervals, interval_mins, cancellation_window_mins,
	                 auto_confirm, allow_checkout_without_deposit, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          ON CONFLICT (business_id) DO UPDATE SET
	                 buffer_mins = EXCLUDED.buffer_mins,
	                 min_duration_mins = EXCLUDED.min_duration_mins,
	                 max_duration_mins = EXCLUDED.max_duration_mins,
	                 min_advance_mins = EXCLUDED.min_advance_mins,
	                 max_advance_days = EXCLUDED.max_advance_days,
	                 max_daily_reservations = EXCLUDED.max_daily_reservations,
	                 use_fixed_intervals = EXCLUDED.use_fixed_intervals,
	                 interval_mins = EXCLUDED.interval_mins,
	                 cancellation_window_mins = EXCLUDED.cancellation_window_mins,
	                 auto_confirm = EXCLUDED.auto_confirm,
	                 allow_checkout_without_deposit = EXCLUDED.allow_checkout_without_deposit,
	                 updated_at = EXCLUDED.updated_at`
	logger.DatabaseCall("SavePolicy", query, "business_id", p.BusinessID)
	res, err := r.db.ExecContext(ctx, query, p.BusinessID, p.BufferMins, p.MinDurationMins, p.MaxDurationMins,
		p.MinAdvanceMins, p.MaxAdvanceDays, p.MaxDailyReservations, p.UseFixedIntervals, p.IntervalMins,
		p.CancellationWindowMins, p.AutoConfirm, p.AllowCheckoutWithoutDeposit, time.Now().UTC())
	var n int64
	if err == nil {
		n, _ = res.RowsAffected()
	}
	logger.DatabaseResult("SavePolicy", n, err)
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

type resourceRepository struct {
	db *sql.DB
}

func NewResourceRepository(db *sql.DB) repository.ResourceRepository {
	return &resourceRepository{db: db}
}

const resourceColumns = `id, business_id, kind, name, capacity, timezone, rate_type, rate_cents, deposit_cents, late_fee_percentage, created_at, updated_at`

func (r *resourceRepository) CreateResource(ctx context.Context, res *domain.Resource) error {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	now := time.Now().UTC()
	res.CreatedAt, res.UpdatedAt = now, now

	var (
		rateType   sql.NullString
		rateCents  sql.NullInt64
		deposit    sql.NullInt64
		lateFeePct decimal.NullDecimal
	)
	if t := res.RentalTerms; t != nil {
		rateType = sql.NullString{String: string(t.RateType), Valid: true}
		rateCents = sql.NullInt64{Int64: t.RateCents, Valid: true}
		deposit = sql.NullInt64{Int64: t.DepositCents, Valid: true}
		lateFeePct = decimal.NullDecimal{Decimal: t.LateFeePercentage, Valid: true}
	}

	query := `INSERT INTO resources (` + resourceColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	logger.DatabaseCall("CreateResource", query, "resource_id", res.ID)
	_, err := r.db.ExecContext(ctx, query, res.ID, res.BusinessID, res.Kind, res.Name, res.Capacity, res.Timezone,
		rateType, rateCents, deposit, lateFeePct, res.CreatedAt, res.UpdatedAt)
	logger.DatabaseResult("CreateResource", 1, err)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*domain.Resource, error) {
	var (
		res        domain.Resource
		rateType   sql.NullString
		rateCents  sql.NullInt64
		deposit    sql.NullInt64
		lateFeePct decimal.NullDecimal
	)
	err := row.Scan(&res.ID, &res.BusinessID, &res.Kind, &res.Name, &res.Capacity, &res.Timezone,
		&rateType, &rateCents, &deposit, &lateFeePct, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if rateType.Valid {
		res.RentalTerms = &domain.RentalTerms{
			RateType:          domain.RateType(rateType.String),
			RateCents:         rateCents.Int64,
			DepositCents:      deposit.Int64,
			LateFeePercentage: lateFeePct.Decimal,
		}
	}
	return &res, nil
}

func (r *resourceRepository) GetResource(ctx context.Context, id uuid.UUID) (*domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE id = $1`
	logger.DatabaseCall("GetResource", query, "resource_id", id)
	res, err := scanResource(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("GetResource", 0, nil)
		return nil, domain.NotFound("resource", id)
	}
	logger.DatabaseResult("GetResource", 1, err)
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

func (r *resourceRepository) ListResources(ctx context.Context, businessID uuid.UUID) ([]domain.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources WHERE business_id = $1 ORDER BY name`
	logger.DatabaseCall("ListResources", query, "business_id", businessID)
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		logger.DatabaseResult("ListResources", 0, err)
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, *res)
	}
	logger.DatabaseResult("ListResources", int64(len(out)), rows.Err())
	return out, rows.Err()
}

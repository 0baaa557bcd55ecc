package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
	"github.com/brianlane/bizblasts-sub006/internal/utils"
)

type reservationStore struct {
	db *sql.DB
}

func NewReservationStore(db *sql.DB) repository.ReservationStore {
	return &reservationStore{db: db}
}

const reservationColumns = `id, business_id, resource_id, kind, start_time, end_time, status, quantity, version,
	customer_id, service_id, COALESCE(cancellation_reason, ''), cancelled_at,
	COALESCE(deposit_cents, 0), COALESCE(deposit_status, ''), COALESCE(rate_type, ''), COALESCE(rate_cents, 0),
	COALESCE(late_fee_percentage, 0), COALESCE(charge_cents, 0), COALESCE(late_fee_cents, 0), COALESCE(damage_fee_cents, 0),
	deposit_refund_cents, actual_pickup_time, returned_at, created_at, updated_at`

// reservationRow is one row of the shared reservations table.
type reservationRow struct {
	domain.Reservation
	customerID         uuid.UUID
	serviceID          uuid.NullUUID
	cancellationReason string
	cancelledAt        sql.NullTime
	depositCents       int64
	depositStatus      string
	rateType           string
	rateCents          int64
	lateFeePercentage  decimal.Decimal
	chargeCents        int64
	lateFeeCents       int64
	damageFeeCents     int64
	depositRefundCents sql.NullInt64
	actualPickupTime   sql.NullTime
	returnedAt         sql.NullTime
}

func scanReservation(row rowScanner) (*reservationRow, error) {
	var r reservationRow
	err := row.Scan(&r.ID, &r.BusinessID, &r.ResourceID, &r.Kind, &r.Start, &r.End, &r.Status, &r.Quantity, &r.Version,
		&r.customerID, &r.serviceID, &r.cancellationReason, &r.cancelledAt,
		&r.depositCents, &r.depositStatus, &r.rateType, &r.rateCents,
		&r.lateFeePercentage, &r.chargeCents, &r.lateFeeCents, &r.damageFeeCents,
		&r.depositRefundCents, &r.actualPickupTime, &r.returnedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if r.returnedAt.Valid {
		t := r.returnedAt.Time
		r.ReturnedAt = &t
	}
	return &r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *reservationRow) booking() *domain.Booking {
	return &domain.Booking{
		Reservation:        r.Reservation,
		CustomerID:         r.customerID,
		ServiceID:          r.serviceID.UUID,
		CancellationReason: r.cancellationReason,
		CancelledAt:        timePtr(r.cancelledAt),
	}
}

func (r *reservationRow) rental() *domain.RentalBooking {
	out := &domain.RentalBooking{
		Reservation:        r.Reservation,
		CustomerID:         r.customerID,
		DepositCents:       r.depositCents,
		DepositStatus:      domain.DepositStatus(r.depositStatus),
		RateType:           domain.RateType(r.rateType),
		RateCents:          r.rateCents,
		LateFeePercentage:  r.lateFeePercentage,
		ChargeCents:        r.chargeCents,
		LateFeeCents:       r.lateFeeCents,
		DamageFeeCents:     r.damageFeeCents,
		ActualPickupTime:   timePtr(r.actualPickupTime),
		CancellationReason: r.cancellationReason,
	}
	if r.depositRefundCents.Valid {
		v := r.depositRefundCents.Int64
		out.DepositRefundCents = &v
	}
	return out
}

func statusStrings(ss []domain.Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

type resourceHeader struct {
	businessID uuid.UUID
	capacity   int
}

func loadResourceHeader(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*resourceHeader, error) {
	query := `SELECT business_id, kind, capacity FROM resources WHERE id = $1`
	logger.DatabaseCall("loadResourceHeader", query, "resource_id", id)
	var (
		h    resourceHeader
		kind domain.ResourceKind
	)
	err := tx.QueryRowContext(ctx, query, id).Scan(&h.businessID, &kind, &h.capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("resource", id)
	}
	logger.DatabaseResult("loadResourceHeader", 1, err)
	if err != nil {
		return nil, fmt.Errorf("load resource: %w", err)
	}
	res := domain.Resource{Kind: kind, Capacity: h.capacity}
	h.capacity = res.EffectiveCapacity()
	return &h, nil
}

// occupiedQuery sums the quantity blocking iv: stored blocking statuses that
// overlap it, plus checked-out rentals past their end that still hold a unit
// until now.
const occupiedQuery = `SELECT COALESCE(SUM(quantity), 0) FROM reservations
	WHERE resource_id = $1 AND id <> $2
	  AND (
	        (status = ANY($3) AND start_time < $5 AND end_time > $4)
	     OR (status = 'checked_out' AND returned_at IS NULL AND end_time < $6 AND start_time < $5 AND $6 > $4)
	  )`

const dailyCountQuery = `SELECT COUNT(*) FROM reservations
	WHERE resource_id = $1 AND id <> $2 AND status = ANY($3) AND start_time >= $4 AND start_time < $5`

// admit checks capacity and the daily limit. The caller holds the resource's
// advisory lock.
func admit(ctx context.Context, tx *sql.Tx, resourceID uuid.UUID, capacity int, cand domain.Reservation, opts repository.CreateOptions, exclude uuid.UUID) error {
	check := cand.Interval.Pad(opts.Buffer)
	blocking := pq.Array(statusStrings(domain.AllBlockingStatuses()))

	logger.DatabaseCall("admit", occupiedQuery, "resource_id", resourceID)
	var occupied int
	err := tx.QueryRowContext(ctx, occupiedQuery, resourceID, exclude, blocking, check.Start, check.End, opts.Now).Scan(&occupied)
	logger.DatabaseResult("admit", 1, err)
	if err != nil {
		return fmt.Errorf("sum occupancy: %w", err)
	}
	if occupied+cand.Qty() > capacity {
		return domain.NewConflictError(resourceID, cand.Interval, "capacity exhausted")
	}

	if opts.DailyLimit > 0 {
		var n int
		logger.DatabaseCall("admit", dailyCountQuery, "resource_id", resourceID)
		err := tx.QueryRowContext(ctx, dailyCountQuery, resourceID, exclude, blocking, opts.Day.Start, opts.Day.End).Scan(&n)
		logger.DatabaseResult("admit", 1, err)
		if err != nil {
			return fmt.Errorf("count daily reservations: %w", err)
		}
		if n >= opts.DailyLimit {
			return domain.NewConflictError(resourceID, cand.Interval, "daily reservation limit reached")
		}
	}
	return nil
}

func stamp(r *domain.Reservation, kind domain.ReservationKind, h *resourceHeader, now time.Time) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.BusinessID == uuid.Nil {
		r.BusinessID = h.businessID
	}
	if r.Quantity < 1 {
		r.Quantity = 1
	}
	r.Kind = kind
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
}

func (s *reservationStore) create(ctx context.Context, r *domain.Reservation, kind domain.ReservationKind, opts repository.CreateOptions,
	insert func(tx *sql.Tx, exclusive bool) error) error {
	if err := r.Interval.Validate(); err != nil {
		return err
	}
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockResource(ctx, tx, r.ResourceID); err != nil {
			return err
		}
		h, err := loadResourceHeader(ctx, tx, r.ResourceID)
		if err != nil {
			return err
		}
		if err := admit(ctx, tx, r.ResourceID, h.capacity, *r, opts, uuid.Nil); err != nil {
			return err
		}
		stamp(r, kind, h, opts.Now)
		return insert(tx, h.capacity == 1)
	})
	return translate(err, r.ResourceID, r.Interval)
}

func (s *reservationStore) CreateBooking(ctx context.Context, b *domain.Booking, opts repository.CreateOptions) error {
	return s.create(ctx, &b.Reservation, domain.KindBooking, opts, func(tx *sql.Tx, exclusive bool) error {
		query := `INSERT INTO reservations (id, business_id, resource_id, kind, start_time, end_time, status, quantity, version, exclusive,
		                 customer_id, service_id, created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
		logger.DatabaseCall("CreateBooking", query, "reservation_id", b.ID, "resource_id", b.ResourceID)
		serviceID := uuid.NullUUID{UUID: b.ServiceID, Valid: b.ServiceID != uuid.Nil}
		_, err := tx.ExecContext(ctx, query, b.ID, b.BusinessID, b.ResourceID, b.Kind, b.Start, b.End, b.Status, b.Quantity,
			b.Version, exclusive, b.CustomerID, serviceID, b.CreatedAt, b.UpdatedAt)
		logger.DatabaseResult("CreateBooking", 1, err)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
}

func (s *reservationStore) CreateRental(ctx context.Context, r *domain.RentalBooking, opts repository.CreateOptions) error {
	return s.create(ctx, &r.Reservation, domain.KindRental, opts, func(tx *sql.Tx, exclusive bool) error {
		query := `INSERT INTO reservations (id, business_id, resource_id, kind, start_time, end_time, status, quantity, version, exclusive,
		                 customer_id, deposit_cents, deposit_status, rate_type, rate_cents, late_fee_percentage, charge_cents,
		                 created_at, updated_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
		logger.DatabaseCall("CreateRental", query, "reservation_id", r.ID, "resource_id", r.ResourceID)
		_, err := tx.ExecContext(ctx, query, r.ID, r.BusinessID, r.ResourceID, r.Kind, r.Start, r.End, r.Status, r.Quantity,
			r.Version, exclusive, r.CustomerID, r.DepositCents, r.DepositStatus, r.RateType, r.RateCents, r.LateFeePercentage,
			r.ChargeCents, r.CreatedAt, r.UpdatedAt)
		logger.DatabaseResult("CreateRental", 1, err)
		if err != nil {
			return fmt.Errorf("insert rental: %w", err)
		}
		return nil
	})
}

func (s *reservationStore) get(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id uuid.UUID, kind domain.ReservationKind, forUpdate bool) (*reservationRow, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1 AND kind = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	logger.DatabaseCall("getReservation", query, "reservation_id", id)
	row, err := scanReservation(q.QueryRowContext(ctx, query, id, kind))
	if errors.Is(err, sql.ErrNoRows) {
		logger.DatabaseResult("getReservation", 0, nil)
		return nil, domain.NotFound(string(kind), id)
	}
	logger.DatabaseResult("getReservation", 1, err)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", kind, err)
	}
	return row, nil
}

func (s *reservationStore) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row, err := s.get(ctx, s.db, id, domain.KindBooking, false)
	if err != nil {
		return nil, err
	}
	return row.booking(), nil
}

func (s *reservationStore) GetRental(ctx context.Context, id uuid.UUID) (*domain.RentalBooking, error) {
	row, err := s.get(ctx, s.db, id, domain.KindRental, false)
	if err != nil {
		return nil, err
	}
	return row.rental(), nil
}

func (s *reservationStore) TransitionBooking(ctx context.Context, t repository.BookingTransition) (*domain.Booking, error) {
	var out *domain.Booking
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		row, err := s.get(ctx, tx, t.ID, domain.KindBooking, true)
		if err != nil {
			return err
		}
		b := row.booking()
		rule, err := t.Resolve(b)
		if err != nil {
			return err
		}
		if rule.RecheckCapacity {
			if err := lockResource(ctx, tx, b.ResourceID); err != nil {
				return err
			}
			h, err := loadResourceHeader(ctx, tx, b.ResourceID)
			if err != nil {
				return err
			}
			cand := b.Reservation
			cand.Interval = t.Candidate(b)
			if err := admit(ctx, tx, b.ResourceID, h.capacity, cand, repository.CreateOptions{Now: t.Now, Buffer: t.Buffer}, b.ID); err != nil {
				return err
			}
		}
		t.Apply(b, rule)

		query := `UPDATE reservations SET status = $1, start_time = $2, end_time = $3, cancellation_reason = NULLIF($4, ''),
		                 cancelled_at = $5, version = version + 1, updated_at = $6
		          WHERE id = $7 AND version = $8`
		logger.DatabaseCall("TransitionBooking", query, "reservation_id", b.ID, "action", t.Action)
		res, err := tx.ExecContext(ctx, query, b.Status, b.Start, b.End, b.CancellationReason, b.CancelledAt, b.UpdatedAt, b.ID, t.ExpectedVersion)
		if err != nil {
			logger.DatabaseResult("TransitionBooking", 0, err)
			return fmt.Errorf("update booking: %w", err)
		}
		n, _ := res.RowsAffected()
		logger.DatabaseResult("TransitionBooking", n, nil)
		if n == 0 {
			return &domain.StaleUpdateError{ReservationID: b.ID, ExpectedVersion: t.ExpectedVersion}
		}
		out = b
		return nil
	})
	if err != nil {
		iv := domain.Interval{}
		if t.NewInterval != nil {
			iv = *t.NewInterval
		}
		return nil, translate(err, uuid.Nil, iv)
	}
	return out, nil
}

func (s *reservationStore) TransitionRental(ctx context.Context, t repository.RentalTransition) (*domain.RentalBooking, error) {
	var out *domain.RentalBooking
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		row, err := s.get(ctx, tx, t.ID, domain.KindRental, true)
		if err != nil {
			return err
		}
		r := row.rental()
		rule, err := t.Resolve(r)
		if err != nil {
			return err
		}
		if rule.RecheckCapacity {
			if err := lockResource(ctx, tx, r.ResourceID); err != nil {
				return err
			}
			h, err := loadResourceHeader(ctx, tx, r.ResourceID)
			if err != nil {
				return err
			}
			if err := admit(ctx, tx, r.ResourceID, h.capacity, r.Reservation, t.CreateOptions(), r.ID); err != nil {
				return err
			}
		}
		t.Apply(r, rule)

		var refund sql.NullInt64
		if r.DepositRefundCents != nil {
			refund = sql.NullInt64{Int64: *r.DepositRefundCents, Valid: true}
		}
		query := `UPDATE reservations SET status = $1, deposit_status = $2, actual_pickup_time = $3, returned_at = $4,
		                 late_fee_cents = $5, damage_fee_cents = $6, deposit_refund_cents = $7,
		                 cancellation_reason = NULLIF($8, ''), version = version + 1, updated_at = $9
		          WHERE id = $10 AND version = $11`
		logger.DatabaseCall("TransitionRental", query, "reservation_id", r.ID, "action", t.Action)
		res, err := tx.ExecContext(ctx, query, r.Status, r.DepositStatus, r.ActualPickupTime, r.ReturnedAt,
			r.LateFeeCents, r.DamageFeeCents, refund, r.CancellationReason, r.UpdatedAt, r.ID, t.ExpectedVersion)
		if err != nil {
			logger.DatabaseResult("TransitionRental", 0, err)
			return fmt.Errorf("update rental: %w", err)
		}
		n, _ := res.RowsAffected()
		logger.DatabaseResult("TransitionRental", n, nil)
		if n == 0 {
			return &domain.StaleUpdateError{ReservationID: r.ID, ExpectedVersion: t.ExpectedVersion}
		}
		if t.Report != nil {
			if err := insertReport(ctx, tx, t.Report); err != nil {
				return err
			}
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, translate(err, uuid.Nil, domain.Interval{})
	}
	return out, nil
}

func (s *reservationStore) ListBlocking(ctx context.Context, resourceID uuid.UUID, window domain.Interval, now time.Time) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE resource_id = $1
	            AND (
	                  (status = ANY($2) AND start_time < $4 AND end_time > $3)
	               OR (status = 'checked_out' AND returned_at IS NULL AND end_time < $5 AND start_time < $4 AND $5 > $3)
	            )
	          ORDER BY start_time`
	logger.DatabaseCall("ListBlocking", query, "resource_id", resourceID)
	rows, err := s.db.QueryContext(ctx, query, resourceID, pq.Array(statusStrings(domain.AllBlockingStatuses())), window.Start, window.End, now)
	if err != nil {
		logger.DatabaseResult("ListBlocking", 0, err)
		return nil, fmt.Errorf("list blocking: %w", err)
	}
	return collectReservations(rows, "ListBlocking")
}

func (s *reservationStore) ListEndedBefore(ctx context.Context, kind domain.ReservationKind, status domain.Status, cutoff time.Time, limit int) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE kind = $1 AND status = $2 AND end_time < $3
	          ORDER BY end_time LIMIT $4`
	logger.DatabaseCall("ListEndedBefore", query, "kind", kind, "status", status)
	rows, err := s.db.QueryContext(ctx, query, kind, status, cutoff, limit)
	if err != nil {
		logger.DatabaseResult("ListEndedBefore", 0, err)
		return nil, fmt.Errorf("list ended reservations: %w", err)
	}
	return collectReservations(rows, "ListEndedBefore")
}

func collectReservations(rows *sql.Rows, op string) ([]domain.Reservation, error) {
	defer rows.Close()
	var out []domain.Reservation
	for rows.Next() {
		row, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, row.Reservation)
	}
	logger.DatabaseResult(op, int64(len(out)), rows.Err())
	return out, rows.Err()
}

func (s *reservationStore) MarkBusinessDeleted(ctx context.Context, businessID uuid.UUID, now time.Time) (int64, error) {
	query := `UPDATE reservations SET status = $1, version = version + 1, updated_at = $2
	          WHERE business_id = $3 AND kind = $4 AND status <> $1`
	logger.DatabaseCall("MarkBusinessDeleted", query, "business_id", businessID)
	res, err := s.db.ExecContext(ctx, query, domain.StatusBusinessDeleted, now, businessID, domain.KindBooking)
	if err != nil {
		logger.DatabaseResult("MarkBusinessDeleted", 0, err)
		return 0, fmt.Errorf("mark business deleted: %w", err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("MarkBusinessDeleted", n, err)
	return n, err
}

// SetCapacity also re-derives the exclusive flag the exclusion constraint keys
// on, so existing rows follow the new capacity.
func (s *reservationStore) SetCapacity(ctx context.Context, resourceID uuid.UUID, capacity int, now time.Time) (*domain.Resource, error) {
	var out *domain.Resource
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := lockResource(ctx, tx, resourceID); err != nil {
			return err
		}

		query := `SELECT ` + reservationColumns + ` FROM reservations WHERE resource_id = $1 AND status = ANY($2)`
		logger.DatabaseCall("SetCapacity", query, "resource_id", resourceID)
		rows, err := tx.QueryContext(ctx, query, resourceID, pq.Array(statusStrings(domain.AllBlockingStatuses())))
		if err != nil {
			logger.DatabaseResult("SetCapacity", 0, err)
			return fmt.Errorf("list held reservations: %w", err)
		}
		held, err := collectReservations(rows, "SetCapacity")
		if err != nil {
			return err
		}
		if peak := utils.PeakQuantity(held, now); peak > capacity {
			return domain.NewConflictError(resourceID, domain.Interval{}, fmt.Sprintf("%d units already reserved", peak))
		}

		query = `UPDATE resources SET capacity = $1, updated_at = $2 WHERE id = $3 RETURNING ` + resourceColumns
		logger.DatabaseCall("SetCapacity", query, "resource_id", resourceID, "capacity", capacity)
		res, err := scanResource(tx.QueryRowContext(ctx, query, capacity, now, resourceID))
		if errors.Is(err, sql.ErrNoRows) {
			logger.DatabaseResult("SetCapacity", 0, nil)
			return domain.NotFound("resource", resourceID)
		}
		logger.DatabaseResult("SetCapacity", 1, err)
		if err != nil {
			return fmt.Errorf("update capacity: %w", err)
		}

		query = `UPDATE reservations SET exclusive = $1 WHERE resource_id = $2 AND exclusive <> $1`
		logger.DatabaseCall("SetCapacity", query, "resource_id", resourceID)
		result, err := tx.ExecContext(ctx, query, res.EffectiveCapacity() == 1, resourceID)
		if err != nil {
			logger.DatabaseResult("SetCapacity", 0, err)
			return fmt.Errorf("update exclusive flag: %w", err)
		}
		n, _ := result.RowsAffected()
		logger.DatabaseResult("SetCapacity", n, nil)
		out = res
		return nil
	})
	if err != nil {
		return nil, translate(err, resourceID, domain.Interval{})
	}
	return out, nil
}

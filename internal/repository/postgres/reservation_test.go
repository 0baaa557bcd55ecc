package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/repository"
)

var (
	start = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	end   = start.Add(time.Hour)
)

var reservationCols = []string{
	"id", "business_id", "resource_id", "kind", "start_time", "end_time", "status", "quantity", "version",
	"customer_id", "service_id", "cancellation_reason", "cancelled_at",
	"deposit_cents", "deposit_status", "rate_type", "rate_cents",
	"late_fee_percentage", "charge_cents", "late_fee_cents", "damage_fee_cents",
	"deposit_refund_cents", "actual_pickup_time", "returned_at", "created_at", "updated_at",
}

func bookingRow(id, resourceID uuid.UUID, status domain.Status, version int64) []driver.Value {
	return []driver.Value{
		id.String(), uuid.New().String(), resourceID.String(), "booking", start, end, string(status), 1, version,
		uuid.New().String(), nil, "", nil,
		0, "", "", 0,
		"0", 0, 0, 0,
		nil, nil, nil, start, start,
	}
}

func rentalRow(id, resourceID uuid.UUID, status domain.Status, version int64) []driver.Value {
	return []driver.Value{
		id.String(), uuid.New().String(), resourceID.String(), "rental", start, end, string(status), 1, version,
		uuid.New().String(), nil, "", nil,
		20000, "authorized", "daily", 5000,
		"15", 5000, 0, 0,
		nil, start, nil, start, start,
	}
}

func newMock(t *testing.T) (*reservationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &reservationStore{db: db}, mock
}

func expectAdmit(mock sqlmock.Sqlmock, resourceID uuid.UUID, capacity, occupied int) {
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(resourceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT business_id, kind, capacity FROM resources WHERE id = \\$1").
		WithArgs(resourceID).
		WillReturnRows(sqlmock.NewRows([]string{"business_id", "kind", "capacity"}).AddRow(uuid.New().String(), "rental_item", capacity))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(quantity\\), 0\\) FROM reservations").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(occupied))
}

func TestReservationStore_CreateBooking(t *testing.T) {
	ctx := context.Background()
	resourceID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		store, mock := newMock(t)
		b := &domain.Booking{
			Reservation: domain.Reservation{ResourceID: resourceID, Interval: domain.Interval{Start: start, End: end}, Status: domain.StatusPending},
			CustomerID:  uuid.New(),
		}

		mock.ExpectBegin()
		expectAdmit(mock, resourceID, 1, 0)
		mock.ExpectExec("INSERT INTO reservations").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), resourceID, domain.KindBooking, start, end, domain.StatusPending, 1,
				int64(1), true, b.CustomerID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.CreateBooking(ctx, b, repository.CreateOptions{Now: start.Add(-time.Hour)})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, b.ID)
		assert.Equal(t, int64(1), b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Capacity exhausted", func(t *testing.T) {
		store, mock := newMock(t)
		b := &domain.Booking{
			Reservation: domain.Reservation{ResourceID: resourceID, Interval: domain.Interval{Start: start, End: end}, Status: domain.StatusPending},
		}

		mock.ExpectBegin()
		expectAdmit(mock, resourceID, 2, 2)
		mock.ExpectRollback()

		err := store.CreateBooking(ctx, b, repository.CreateOptions{Now: start})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Daily limit", func(t *testing.T) {
		store, mock := newMock(t)
		b := &domain.Booking{
			Reservation: domain.Reservation{ResourceID: resourceID, Interval: domain.Interval{Start: start, End: end}, Status: domain.StatusPending},
		}

		mock.ExpectBegin()
		expectAdmit(mock, resourceID, 1, 0)
		mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reservations").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
		mock.ExpectRollback()

		err := store.CreateBooking(ctx, b, repository.CreateOptions{
			Now:        start,
			DailyLimit: 3,
			Day:        domain.Interval{Start: start.Truncate(24 * time.Hour), End: start.Truncate(24 * time.Hour).Add(24 * time.Hour)},
		})
		var ce *domain.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Contains(t, ce.Reason, "daily")
	})

	t.Run("Exclusion violation maps to conflict", func(t *testing.T) {
		store, mock := newMock(t)
		b := &domain.Booking{
			Reservation: domain.Reservation{ResourceID: resourceID, Interval: domain.Interval{Start: start, End: end}, Status: domain.StatusPending},
		}

		mock.ExpectBegin()
		expectAdmit(mock, resourceID, 1, 0)
		mock.ExpectExec("INSERT INTO reservations").
			WillReturnError(&pq.Error{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
		mock.ExpectRollback()

		err := store.CreateBooking(ctx, b, repository.CreateOptions{Now: start})
		var ce *domain.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, resourceID, ce.ResourceID)
	})

	t.Run("Invalid interval never reaches the database", func(t *testing.T) {
		store, mock := newMock(t)
		b := &domain.Booking{Reservation: domain.Reservation{ResourceID: resourceID, Interval: domain.Interval{Start: end, End: start}}}
		err := store.CreateBooking(ctx, b, repository.CreateOptions{Now: start})
		assert.ErrorIs(t, err, domain.ErrPolicyViolation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReservationStore_GetBooking(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	id, resourceID := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2").
			WithArgs(id, domain.KindBooking).
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(bookingRow(id, resourceID, domain.StatusConfirmed, 3)...))

		b, err := store.GetBooking(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, b.ID)
		assert.Equal(t, domain.StatusConfirmed, b.Status)
		assert.Equal(t, int64(3), b.Version)
		assert.Equal(t, uuid.Nil, b.ServiceID)
		assert.Nil(t, b.CancelledAt)
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows(reservationCols))

		_, err := store.GetBooking(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestReservationStore_GetRental(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	id, resourceID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2").
		WithArgs(id, domain.KindRental).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(rentalRow(id, resourceID, domain.StatusCheckedOut, 4)...))

	r, err := store.GetRental(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedOut, r.Status)
	assert.Equal(t, int64(20000), r.DepositCents)
	assert.Equal(t, domain.RateTypeDaily, r.RateType)
	assert.Equal(t, "15", r.LateFeePercentage.String())
	require.NotNil(t, r.ActualPickupTime)
	assert.Nil(t, r.DepositRefundCents)
}

func TestReservationStore_TransitionBooking(t *testing.T) {
	ctx := context.Background()
	id, resourceID := uuid.New(), uuid.New()

	t.Run("Confirm", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
			WithArgs(id, domain.KindBooking).
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(bookingRow(id, resourceID, domain.StatusPending, 1)...))
		mock.ExpectExec("UPDATE reservations SET status").
			WithArgs(domain.StatusConfirmed, start, end, "", nil, sqlmock.AnyArg(), id, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		b, err := store.TransitionBooking(ctx, repository.BookingTransition{ID: id, ExpectedVersion: 1, Action: domain.ActionConfirm, Now: start})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, b.Status)
		assert.Equal(t, int64(2), b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale version", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(bookingRow(id, resourceID, domain.StatusPending, 2)...))
		mock.ExpectRollback()

		_, err := store.TransitionBooking(ctx, repository.BookingTransition{ID: id, ExpectedVersion: 1, Action: domain.ActionConfirm, Now: start})
		var se *domain.StaleUpdateError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, int64(2), se.ActualVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reschedule rechecks under lock", func(t *testing.T) {
		store, mock := newMock(t)
		target := domain.Interval{Start: start.Add(2 * time.Hour), End: end.Add(2 * time.Hour)}

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(bookingRow(id, resourceID, domain.StatusConfirmed, 1)...))
		expectAdmit(mock, resourceID, 1, 1)
		mock.ExpectRollback()

		_, err := store.TransitionBooking(ctx, repository.BookingTransition{
			ID: id, ExpectedVersion: 1, Action: domain.ActionReschedule, Now: start, NewInterval: &target,
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Invalid transition", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
			WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(bookingRow(id, resourceID, domain.StatusCompleted, 5)...))
		mock.ExpectRollback()

		_, err := store.TransitionBooking(ctx, repository.BookingTransition{ID: id, ExpectedVersion: 5, Action: domain.ActionConfirm, Now: start})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestReservationStore_TransitionRental_ReturnWritesReport(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	id, resourceID := uuid.New(), uuid.New()
	returned := end.Add(47 * time.Hour)
	refund := int64(18500)
	report := domain.NewConditionReport(id, domain.ReportReturn, domain.ReportInput{Notes: "scratched"}, returned)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
		WithArgs(id, domain.KindRental).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(rentalRow(id, resourceID, domain.StatusCheckedOut, 3)...))
	mock.ExpectExec("UPDATE reservations SET status").
		WithArgs(domain.StatusReturned, domain.DepositCaptured, sqlmock.AnyArg(), sqlmock.AnyArg(),
			int64(1500), int64(0), sqlmock.AnyArg(), "", returned, id, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO condition_reports").
		WithArgs(report.ID, id, domain.ReportReturn, sqlmock.AnyArg(), "scratched", int64(0), returned).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r, err := store.TransitionRental(ctx, repository.RentalTransition{
		ID: id, ExpectedVersion: 3, Action: domain.ActionReturn, Now: returned,
		LateFeeCents: 1500, DepositRefundCents: &refund, DepositStatus: domain.DepositCaptured, Report: &report,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReturned, r.Status)
	require.NotNil(t, r.ReturnedAt)
	assert.Equal(t, returned, *r.ReturnedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationStore_TransitionRental_DepositAppliesLimits(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	id, resourceID := uuid.New(), uuid.New()
	day := domain.Interval{Start: start.Truncate(24 * time.Hour), End: start.Truncate(24 * time.Hour).Add(24 * time.Hour)}
	now := start.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM reservations WHERE id = \\$1 AND kind = \\$2 FOR UPDATE").
		WithArgs(id, domain.KindRental).
		WillReturnRows(sqlmock.NewRows(reservationCols).AddRow(rentalRow(id, resourceID, domain.StatusPendingDeposit, 1)...))
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(resourceID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT business_id, kind, capacity FROM resources WHERE id = \\$1").
		WithArgs(resourceID).
		WillReturnRows(sqlmock.NewRows([]string{"business_id", "kind", "capacity"}).AddRow(uuid.New().String(), "rental_item", 3))
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(quantity\\), 0\\) FROM reservations").
		WithArgs(resourceID, id, sqlmock.AnyArg(), start.Add(-30*time.Minute), end.Add(30*time.Minute), now).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM reservations").
		WithArgs(resourceID, id, sqlmock.AnyArg(), day.Start, day.End).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := store.TransitionRental(ctx, repository.RentalTransition{
		ID: id, ExpectedVersion: 1, Action: domain.ActionPayDeposit, Now: now, DepositStatus: domain.DepositAuthorized,
		Buffer: 30 * time.Minute, DailyLimit: 1, Day: day,
	})
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "daily reservation limit reached", ce.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationStore_ListBlocking(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	resourceID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM reservations").
		WithArgs(resourceID, sqlmock.AnyArg(), start, end, start).
		WillReturnRows(sqlmock.NewRows(reservationCols).
			AddRow(bookingRow(uuid.New(), resourceID, domain.StatusConfirmed, 1)...).
			AddRow(rentalRow(uuid.New(), resourceID, domain.StatusCheckedOut, 1)...))

	got, err := store.ListBlocking(ctx, resourceID, domain.Interval{Start: start, End: end}, start)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.KindBooking, got[0].Kind)
	assert.Equal(t, domain.KindRental, got[1].Kind)
}

func TestReservationStore_MarkBusinessDeleted(t *testing.T) {
	ctx := context.Background()
	store, mock := newMock(t)
	businessID := uuid.New()

	mock.ExpectExec("UPDATE reservations SET status = \\$1").
		WithArgs(domain.StatusBusinessDeleted, start, businessID, domain.KindBooking).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.MarkBusinessDeleted(ctx, businessID, start)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestReservationStore_SetCapacity(t *testing.T) {
	ctx := context.Background()
	resourceID := uuid.New()
	now := start.Add(-time.Hour)

	expectHeld := func(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
		mock.ExpectExec("SELECT pg_advisory_xact_lock").
			WithArgs(resourceID.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT (.+) FROM reservations WHERE resource_id = \\$1 AND status = ANY\\(\\$2\\)").
			WithArgs(resourceID, sqlmock.AnyArg()).
			WillReturnRows(rows)
	}

	t.Run("Lowered to one marks rows exclusive", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		expectHeld(mock, sqlmock.NewRows(reservationCols).
			AddRow(bookingRow(uuid.New(), resourceID, domain.StatusConfirmed, 1)...))
		mock.ExpectQuery("UPDATE resources SET capacity = \\$1, updated_at = \\$2 WHERE id = \\$3 RETURNING").
			WithArgs(1, now, resourceID).
			WillReturnRows(sqlmock.NewRows(resourceCols).
				AddRow(resourceID.String(), uuid.New().String(), "rental_item", "Kayak", 1, "UTC", "daily", 5000, 20000, "15", start, now))
		mock.ExpectExec("UPDATE reservations SET exclusive = \\$1").
			WithArgs(true, resourceID).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		res, err := store.SetCapacity(ctx, resourceID, 1, now)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Capacity)
		assert.Equal(t, now, res.UpdatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Below what is held", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		expectHeld(mock, sqlmock.NewRows(reservationCols).
			AddRow(bookingRow(uuid.New(), resourceID, domain.StatusConfirmed, 1)...).
			AddRow(rentalRow(uuid.New(), resourceID, domain.StatusDepositPaid, 1)...))
		mock.ExpectRollback()

		_, err := store.SetCapacity(ctx, resourceID, 1, now)
		var ce *domain.ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "2 units already reserved", ce.Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown resource", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		expectHeld(mock, sqlmock.NewRows(reservationCols))
		mock.ExpectQuery("UPDATE resources SET capacity").
			WillReturnRows(sqlmock.NewRows(resourceCols))
		mock.ExpectRollback()

		_, err := store.SetCapacity(ctx, resourceID, 2, now)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

var resourceCols = []string{"id", "business_id", "kind", "name", "capacity", "timezone", "rate_type", "rate_cents", "deposit_cents", "late_fee_percentage", "created_at", "updated_at"}

func TestResourceRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewResourceRepository(db)
	ctx := context.Background()

	t.Run("Rental item with terms", func(t *testing.T) {
		res := &domain.Resource{
			BusinessID: uuid.New(),
			Kind:       domain.ResourceKindRentalItem,
			Name:       "Kayak",
			Capacity:   4,
			Timezone:   "America/Denver",
			RentalTerms: &domain.RentalTerms{
				RateType: domain.RateTypeDaily, RateCents: 5000, DepositCents: 20000, LateFeePercentage: decimal.NewFromInt(15),
			},
		}
		mock.ExpectExec("INSERT INTO resources").
			WithArgs(sqlmock.AnyArg(), res.BusinessID, domain.ResourceKindRentalItem, "Kayak", 4, "America/Denver",
				"daily", int64(5000), int64(20000), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CreateResource(ctx, res))
		assert.NotEqual(t, uuid.Nil, res.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Staff without terms", func(t *testing.T) {
		res := &domain.Resource{BusinessID: uuid.New(), Kind: domain.ResourceKindStaff, Name: "Ana", Capacity: 1, Timezone: "UTC"}
		mock.ExpectExec("INSERT INTO resources").
			WithArgs(sqlmock.AnyArg(), res.BusinessID, domain.ResourceKindStaff, "Ana", 1, "UTC",
				nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CreateResource(ctx, res))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResourceRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewResourceRepository(db)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM resources WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(resourceCols).
				AddRow(id.String(), uuid.New().String(), "rental_item", "Kayak", 4, "UTC", "weekly", 7000, 10000, "10", now, now))

		res, err := repo.GetResource(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 4, res.EffectiveCapacity())
		require.NotNil(t, res.RentalTerms)
		assert.Equal(t, domain.RateTypeWeekly, res.RentalTerms.RateType)
		assert.True(t, res.RentalTerms.LateFeePercentage.Equal(decimal.NewFromInt(10)))
	})

	t.Run("Staff has no terms", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM resources WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows(resourceCols).
				AddRow(id.String(), uuid.New().String(), "staff", "Ana", 3, "UTC", nil, nil, nil, nil, now, now))

		res, err := repo.GetResource(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, res.RentalTerms)
		assert.Equal(t, 1, res.EffectiveCapacity())
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM resources WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows(resourceCols))

		_, err := repo.GetResource(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPolicyRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewPolicyRepository(db)
	ctx := context.Background()
	businessID := uuid.New()

	t.Run("Missing policy", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM booking_policies WHERE business_id = \\$1").
			WithArgs(businessID).
			WillReturnRows(sqlmock.NewRows([]string{"business_id"}))

		_, err := repo.GetPolicy(ctx, businessID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Upsert", func(t *testing.T) {
		p := domain.DefaultBookingPolicy(businessID)
		p.BufferMins = 15
		mock.ExpectExec("INSERT INTO booking_policies (.+) ON CONFLICT \\(business_id\\) DO UPDATE").
			WithArgs(businessID, 15, 0, 0, 0, 0, 0, false, 30, 0, false, false, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SavePolicy(ctx, &p))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Get", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM booking_policies").
			WillReturnRows(sqlmock.NewRows([]string{
				"business_id", "buffer_mins", "min_duration_mins", "max_duration_mins", "min_advance_mins", "max_advance_days",
				"max_daily_reservations", "use_fixed_intervals", "interval_mins", "cancellation_window_mins",
				"auto_confirm", "allow_checkout_without_deposit",
			}).AddRow(businessID.String(), 15, 30, 120, 60, 30, 8, true, 30, 1440, true, false))

		p, err := repo.GetPolicy(ctx, businessID)
		require.NoError(t, err)
		assert.Equal(t, 15*time.Minute, p.Buffer())
		assert.Equal(t, 30*time.Minute, p.Step())
		assert.True(t, p.AutoConfirm)
	})
}

func TestScheduleRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := NewScheduleRepository(db)
	ctx := context.Background()
	resourceID := uuid.New()

	t.Run("No template", func(t *testing.T) {
		mock.ExpectQuery("SELECT weekly, exceptions, updated_at FROM schedule_templates").
			WithArgs(resourceID).
			WillReturnRows(sqlmock.NewRows([]string{"weekly", "exceptions", "updated_at"}))

		tpl, err := repo.GetTemplate(ctx, resourceID)
		require.NoError(t, err)
		assert.Nil(t, tpl)
	})

	t.Run("Decodes windows", func(t *testing.T) {
		mock.ExpectQuery("SELECT weekly, exceptions, updated_at FROM schedule_templates").
			WillReturnRows(sqlmock.NewRows([]string{"weekly", "exceptions", "updated_at"}).
				AddRow([]byte(`{"1":[{"start":"09:00","end":"17:00"}]}`), []byte(`{"2024-06-10":[]}`), time.Now()))

		tpl, err := repo.GetTemplate(ctx, resourceID)
		require.NoError(t, err)
		require.Len(t, tpl.Weekly[time.Monday], 1)
		assert.Equal(t, "09:00", tpl.Weekly[time.Monday][0].Start.String())

		closed := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
		assert.Empty(t, tpl.WindowsOn(closed))
	})

	t.Run("Save", func(t *testing.T) {
		tpl := &domain.ScheduleTemplate{ResourceID: resourceID}
		tpl.SetWeekday(time.Monday, domain.Window{Start: domain.MustTimeOfDay("09:00"), End: domain.MustTimeOfDay("17:00")})
		mock.ExpectExec("INSERT INTO schedule_templates").
			WithArgs(resourceID, []byte(`{"1":[{"start":"09:00","end":"17:00"}]}`), []byte(`{}`), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.SaveTemplate(ctx, tpl))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

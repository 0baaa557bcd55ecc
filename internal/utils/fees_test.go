package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

func TestDailyRate(t *testing.T) {
	assert.True(t, DailyRate(domain.RateTypeHourly, 500).Equal(decimal.NewFromInt(12000)))
	assert.True(t, DailyRate(domain.RateTypeDaily, 5000).Equal(decimal.NewFromInt(5000)))
	assert.True(t, DailyRate(domain.RateTypeWeekly, 7000).Equal(decimal.NewFromInt(1000)))
}

func TestDaysLate(t *testing.T) {
	end := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		returned time.Time
		expected int
	}{
		{"Early", end.Add(-time.Hour), 0},
		{"On time", end, 0},
		{"One minute late", end.Add(time.Minute), 1},
		{"Exactly one day", end.Add(24 * time.Hour), 1},
		{"Just over one day", end.Add(24*time.Hour + time.Minute), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DaysLate(end, tt.returned))
		})
	}
}

func TestLateFeeCents(t *testing.T) {
	t.Run("Daily rate", func(t *testing.T) {
		fee := LateFeeCents(2, decimal.NewFromInt(5000), decimal.NewFromInt(15), 1)
		assert.Equal(t, int64(1500), fee)
	})

	t.Run("Rounds to the cent", func(t *testing.T) {
		// 1 * 1000/7 * 10% = 14.2857
		fee := LateFeeCents(1, DailyRate(domain.RateTypeWeekly, 1000), decimal.NewFromInt(10), 1)
		assert.Equal(t, int64(14), fee)
	})

	t.Run("Not late", func(t *testing.T) {
		assert.Equal(t, int64(0), LateFeeCents(0, decimal.NewFromInt(5000), decimal.NewFromInt(15), 1))
	})

	t.Run("Quantity", func(t *testing.T) {
		fee := LateFeeCents(1, decimal.NewFromInt(5000), decimal.NewFromInt(10), 3)
		assert.Equal(t, int64(1500), fee)
	})
}

func TestDepositRefundCents(t *testing.T) {
	assert.Equal(t, int64(18500), DepositRefundCents(20000, 1500, 0))
	assert.Equal(t, int64(13500), DepositRefundCents(20000, 1500, 5000))
	assert.Equal(t, int64(0), DepositRefundCents(20000, 15000, 9000))
}

func TestSettleReturn(t *testing.T) {
	end := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rental := &domain.RentalBooking{
		Reservation: domain.Reservation{
			Kind:     domain.KindRental,
			Interval: domain.Interval{Start: end.Add(-72 * time.Hour), End: end},
			Status:   domain.StatusCheckedOut,
			Quantity: 1,
		},
		DepositCents:      20000,
		RateType:          domain.RateTypeDaily,
		RateCents:         5000,
		LateFeePercentage: decimal.NewFromInt(15),
	}

	t.Run("Two days late", func(t *testing.T) {
		s := SettleReturn(rental, 0, end.Add(47*time.Hour))
		assert.Equal(t, 2, s.DaysLate)
		assert.Equal(t, int64(1500), s.LateFeeCents)
		assert.Equal(t, int64(18500), s.RefundCents)
	})

	t.Run("On time with damage", func(t *testing.T) {
		s := SettleReturn(rental, 2500, end)
		assert.Equal(t, int64(0), s.LateFeeCents)
		assert.Equal(t, int64(2500), s.DamageFeeCents)
		assert.Equal(t, int64(17500), s.RefundCents)
	})

	t.Run("Negative damage ignored", func(t *testing.T) {
		s := SettleReturn(rental, -100, end)
		assert.Equal(t, int64(20000), s.RefundCents)
	})
}

package utils

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

const day = 24 * time.Hour

var (
	hoursPerDay = decimal.NewFromInt(24)
	daysPerWeek = decimal.NewFromInt(7)
	hundred     = decimal.NewFromInt(100)
)

// DailyRate converts a rate snapshot to cents per day.
func DailyRate(rateType domain.RateType, rateCents int64) decimal.Decimal {
	rate := decimal.NewFromInt(rateCents)
	switch rateType {
	case domain.RateTypeHourly:
		return rate.Mul(hoursPerDay)
	case domain.RateTypeWeekly:
		return rate.Div(daysPerWeek)
	default:
		return rate
	}
}

// DaysLate is ceil((returnedAt - end) / 1 day), or zero when returned on time.
func DaysLate(end, returnedAt time.Time) int {
	late := returnedAt.Sub(end)
	if late <= 0 {
		return 0
	}
	return int(math.Ceil(float64(late) / float64(day)))
}

// LateFeeCents is daysLate * dailyRate * percentage/100 * quantity, rounded
// half away from zero to whole cents.
func LateFeeCents(daysLate int, dailyRate, percentage decimal.Decimal, quantity int) int64 {
	if daysLate <= 0 || percentage.IsNegative() {
		return 0
	}
	if quantity < 1 {
		quantity = 1
	}
	fee := decimal.NewFromInt(int64(daysLate)).
		Mul(dailyRate).
		Mul(percentage).
		Div(hundred).
		Mul(decimal.NewFromInt(int64(quantity)))
	return fee.Round(0).IntPart()
}

// DepositRefundCents is clamped at zero: fees beyond the deposit are not
// refunded as a negative amount.
func DepositRefundCents(depositCents, lateFeeCents, damageFeeCents int64) int64 {
	refund := depositCents - lateFeeCents - damageFeeCents
	if refund < 0 {
		return 0
	}
	return refund
}

type Settlement struct {
	DaysLate       int
	LateFeeCents   int64
	DamageFeeCents int64
	RefundCents    int64
}

// SettleReturn computes the financial outcome of returning r at returnedAt.
func SettleReturn(r *domain.RentalBooking, damageCents int64, returnedAt time.Time) Settlement {
	if damageCents < 0 {
		damageCents = 0
	}
	daysLate := DaysLate(r.End, returnedAt)
	lateFee := LateFeeCents(daysLate, DailyRate(r.RateType, r.RateCents), r.LateFeePercentage, r.Qty())
	return Settlement{
		DaysLate:       daysLate,
		LateFeeCents:   lateFee,
		DamageFeeCents: damageCents,
		RefundCents:    DepositRefundCents(r.DepositCents, lateFee, damageCents),
	}
}

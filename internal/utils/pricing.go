package utils

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

// RentalCostBreakdown explains how a rental charge was built.
type RentalCostBreakdown struct {
	Weeks     int
	Days      int
	Hours     int
	WeeksCost int64
	DaysCost  int64
	HoursCost int64
	UnitCost  int64
	Quantity  int
	TotalCost int64
}

// CalculateRentalCost prices iv for quantity units under the rental terms.
//
// hourly: every started hour is charged.
// daily: every started 24h period is charged.
// weekly: whole weeks at the weekly rate, then started days at the daily
// equivalent, never more than one more week.
func CalculateRentalCost(iv domain.Interval, rateType domain.RateType, rateCents int64, quantity int) RentalCostBreakdown {
	if quantity < 1 {
		quantity = 1
	}
	b := RentalCostBreakdown{Quantity: quantity}
	if iv.IsEmpty() || rateCents <= 0 {
		return b
	}
	d := iv.Duration()

	switch rateType {
	case domain.RateTypeHourly:
		b.Hours = ceilUnits(d, time.Hour)
		b.HoursCost = int64(b.Hours) * rateCents
	case domain.RateTypeWeekly:
		days := ceilUnits(d, day)
		b.Weeks = days / 7
		b.Days = days % 7
		b.WeeksCost = int64(b.Weeks) * rateCents
		if b.Days > 0 {
			partial := DailyRate(rateType, rateCents).Mul(decimal.NewFromInt(int64(b.Days))).Round(0).IntPart()
			if partial > rateCents {
				partial = rateCents
			}
			b.DaysCost = partial
		}
	default:
		b.Days = ceilUnits(d, day)
		b.DaysCost = int64(b.Days) * rateCents
	}

	b.UnitCost = b.WeeksCost + b.DaysCost + b.HoursCost
	b.TotalCost = b.UnitCost * int64(quantity)
	return b
}

func ceilUnits(d, unit time.Duration) int {
	return int(math.Ceil(float64(d) / float64(unit)))
}

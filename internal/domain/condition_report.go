package domain

import (
	"time"

	"github.com/google/uuid"
)

type ReportEvent string

const (
	ReportCheckout ReportEvent = "checkout"
	ReportReturn   ReportEvent = "return"
)

type ItemCondition string

const (
	ConditionOK      ItemCondition = "ok"
	ConditionWorn    ItemCondition = "worn"
	ConditionDamaged ItemCondition = "damaged"
	ConditionMissing ItemCondition = "missing"
)

type ChecklistItem struct {
	Name      string        `json:"name"`
	Condition ItemCondition `json:"condition"`
	// RepairCostCents is the estimate for damaged or missing items.
	RepairCostCents int64 `json:"repair_cost_cents,omitempty"`
}

// ConditionReport is written once per checkout or return and never updated.
type ConditionReport struct {
	ID                  uuid.UUID       `json:"id"`
	RentalID            uuid.UUID       `json:"rental_id"`
	Event               ReportEvent     `json:"event"`
	Items               []ChecklistItem `json:"items"`
	Notes               string          `json:"notes"`
	DamageEstimateCents int64           `json:"damage_estimate_cents"`
	RecordedAt          time.Time       `json:"recorded_at"`
}

// ReportInput is what staff submit at the counter.
type ReportInput struct {
	Items []ChecklistItem `json:"items"`
	Notes string          `json:"notes"`
}

func NewConditionReport(rentalID uuid.UUID, event ReportEvent, in ReportInput, at time.Time) ConditionReport {
	items := make([]ChecklistItem, len(in.Items))
	copy(items, in.Items)

	var estimate int64
	for _, it := range items {
		if it.Condition == ConditionDamaged || it.Condition == ConditionMissing {
			if it.RepairCostCents > 0 {
				estimate += it.RepairCostCents
			}
		}
	}

	return ConditionReport{
		ID:                  uuid.New(),
		RentalID:            rentalID,
		Event:               event,
		Items:               items,
		Notes:               in.Notes,
		DamageEstimateCents: estimate,
		RecordedAt:          at,
	}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationCreated     EventType = "reservation.created"
	EventReservationConfirmed   EventType = "reservation.confirmed"
	EventReservationCancelled   EventType = "reservation.cancelled"
	EventReservationRescheduled EventType = "reservation.rescheduled"
	EventReservationCompleted   EventType = "reservation.completed"
	EventRentalCreated          EventType = "rental.created"
	EventRentalDepositPaid      EventType = "rental.deposit_paid"
	EventRentalCheckedOut       EventType = "rental.checked_out"
	EventRentalReturned         EventType = "rental.returned"
	EventRentalCompleted        EventType = "rental.completed"
	EventRentalCancelled        EventType = "rental.cancelled"
	EventRentalOverdue          EventType = "rental.overdue"
)

// Event is a one-way intent for notification and calendar-sync consumers.
type Event struct {
	ID            uuid.UUID `json:"id"`
	Type          EventType `json:"type"`
	BusinessID    uuid.UUID `json:"business_id"`
	ReservationID uuid.UUID `json:"reservation_id"`
	ResourceID    uuid.UUID `json:"resource_id"`
	OldInterval   *Interval `json:"old_interval,omitempty"`
	NewInterval   *Interval `json:"new_interval,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewEvent builds an intent for r. old is only set for reschedules.
func NewEvent(t EventType, r *Reservation, old *Interval, at time.Time) Event {
	iv := r.Interval
	return Event{
		ID:            uuid.New(),
		Type:          t,
		BusinessID:    r.BusinessID,
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		OldInterval:   old,
		NewInterval:   &iv,
		OccurredAt:    at,
	}
}

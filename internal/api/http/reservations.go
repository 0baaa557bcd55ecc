package http

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/service"
)

type createBody struct {
	ResourceID uuid.UUID `json:"resource_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	ServiceID  uuid.UUID `json:"service_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Quantity   int       `json:"quantity"`
}

// actionBody carries the optional inputs of every state change. A zero
// expected_version acts on the stored version.
type actionBody struct {
	ExpectedVersion int64              `json:"expected_version"`
	Reason          string             `json:"reason"`
	By              service.Actor      `json:"by"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	Report          domain.ReportInput `json:"report"`
	DamageCents     int64              `json:"damage_cents"`
}

// action decodes the path id and body shared by every state change.
func action(r *http.Request) (uuid.UUID, actionBody, error) {
	var body actionBody
	id, err := pathID(r)
	if err != nil {
		return uuid.Nil, body, err
	}
	if err := decode(r, &body); err != nil {
		return uuid.Nil, body, err
	}
	return id, body, nil
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.CreateBooking(r.Context(), service.CreateBookingRequest{
		ResourceID:     body.ResourceID,
		CustomerID:     body.CustomerID,
		ServiceID:      body.ServiceID,
		Interval:       domain.NewInterval(body.StartTime, body.EndTime),
		Quantity:       body.Quantity,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.bookings.ConfirmBooking(r.Context(), id, body.ExpectedVersion)
	respond(w, res, err)
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	by := body.By
	switch by {
	case "":
		by = service.ActorCustomer
	case service.ActorCustomer, service.ActorStaff:
	default:
		writeError(w, badRequest("by must be %q or %q", service.ActorCustomer, service.ActorStaff))
		return
	}
	res, err := h.bookings.CancelBooking(r.Context(), id, body.ExpectedVersion, body.Reason, by)
	respond(w, res, err)
}

func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.bookings.CompleteBooking(r.Context(), id, body.ExpectedVersion)
	respond(w, res, err)
}

func (h *Handler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	iv := domain.NewInterval(body.StartTime, body.EndTime)
	res, err := h.bookings.RescheduleBooking(r.Context(), id, body.ExpectedVersion, iv)
	respond(w, res, err)
}

func (h *Handler) CreateRental(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	rb, err := h.rentals.CreateRental(r.Context(), service.CreateRentalRequest{
		ResourceID:     body.ResourceID,
		CustomerID:     body.CustomerID,
		Interval:       domain.NewInterval(body.StartTime, body.EndTime),
		Quantity:       body.Quantity,
		IdempotencyKey: r.Header.Get(IdempotencyHeader),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rb)
}

func (h *Handler) GetRental(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rb, err := h.rentals.GetRental(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rb)
}

func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.rentals.RecordDeposit(r.Context(), id, body.ExpectedVersion)
	respond(w, res, err)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.rentals.CheckOut(r.Context(), id, body.ExpectedVersion, body.Report)
	respond(w, res, err)
}

func (h *Handler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.rentals.ProcessReturn(r.Context(), id, body.ExpectedVersion, body.Report, body.DamageCents)
	respond(w, res, err)
}

func (h *Handler) CompleteRental(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.rentals.CompleteRental(r.Context(), id, body.ExpectedVersion)
	respond(w, res, err)
}

func (h *Handler) CancelRental(w http.ResponseWriter, r *http.Request) {
	id, body, err := action(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.rentals.CancelRental(r.Context(), id, body.ExpectedVersion, body.Reason)
	respond(w, res, err)
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	reports, err := h.rentals.ConditionReports(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if reports == nil {
		reports = []domain.ConditionReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// respond writes the result of a state change.
func respond[T any](w http.ResponseWriter, v T, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

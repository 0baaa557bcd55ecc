package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
	"github.com/brianlane/bizblasts-sub006/internal/idempotency"
	"github.com/brianlane/bizblasts-sub006/internal/logger"
	"github.com/brianlane/bizblasts-sub006/internal/service"
)

// IdempotencyHeader carries the client key for create requests.
const IdempotencyHeader = "Idempotency-Key"

// Services groups what the handler serves.
type Services struct {
	Availability service.AvailabilityService
	Conflicts    service.ConflictDetector
	Bookings     service.BookingService
	Rentals      service.RentalService
	Catalog      service.CatalogService
}

// Handler exposes the engine services as JSON over HTTP.
type Handler struct {
	availability service.AvailabilityService
	conflicts    service.ConflictDetector
	bookings     service.BookingService
	rentals      service.RentalService
	catalog      service.CatalogService
	// maxSlots caps one slots response.
	maxSlots int
}

func NewHandler(svc Services) *Handler {
	return &Handler{
		availability: svc.Availability,
		conflicts:    svc.Conflicts,
		bookings:     svc.Bookings,
		rentals:      svc.Rentals,
		catalog:      svc.Catalog,
		maxSlots:     1000,
	}
}

// RegisterRoutes registers the engine endpoints on router.
func RegisterRoutes(router *mux.Router, h *Handler) {
	router.Use(logRequests)
	router.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/resources", h.CreateResource).Methods(http.MethodPost)
	api.HandleFunc("/resources/{id}", h.GetResource).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/capacity", h.SetCapacity).Methods(http.MethodPut)
	api.HandleFunc("/resources/{id}/slots", h.ListSlots).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/schedule", h.GetSchedule).Methods(http.MethodGet)
	api.HandleFunc("/resources/{id}/schedule", h.SaveSchedule).Methods(http.MethodPut)
	api.HandleFunc("/resources/{id}/availability", h.CheckAvailability).Methods(http.MethodGet)

	api.HandleFunc("/businesses/{id}/resources", h.ListResources).Methods(http.MethodGet)
	api.HandleFunc("/businesses/{id}/policy", h.GetPolicy).Methods(http.MethodGet)
	api.HandleFunc("/businesses/{id}/policy", h.SavePolicy).Methods(http.MethodPut)
	api.HandleFunc("/businesses/{id}", h.DeleteBusiness).Methods(http.MethodDelete)

	api.HandleFunc("/bookings", h.CreateBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}", h.GetBooking).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/confirm", h.ConfirmBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", h.CancelBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/complete", h.CompleteBooking).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/reschedule", h.RescheduleBooking).Methods(http.MethodPost)

	api.HandleFunc("/rentals", h.CreateRental).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}", h.GetRental).Methods(http.MethodGet)
	api.HandleFunc("/rentals/{id}/deposit", h.RecordDeposit).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/checkout", h.CheckOut).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/return", h.ProcessReturn).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/complete", h.CompleteRental).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/cancel", h.CancelRental).Methods(http.MethodPost)
	api.HandleFunc("/rentals/{id}/reports", h.ListReports).Methods(http.MethodGet)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, "in_flight"
	case errors.Is(err, domain.ErrStaleUpdate):
		return http.StatusPreconditionFailed, "stale_update"
	case errors.Is(err, domain.ErrPolicyViolation):
		return http.StatusUnprocessableEntity, "policy_violation"
	case errors.Is(err, domain.ErrInventoryExhausted):
		return http.StatusUnprocessableEntity, "inventory_exhausted"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	}
	return http.StatusInternalServerError, "internal"
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func writeError(w http.ResponseWriter, err error) {
	code, kind := statusFor(err)
	resp := errorResponse{Error: kind, Message: err.Error()}
	var pv *domain.PolicyViolationError
	if errors.As(err, &pv) {
		resp.Rule = pv.Rule
	}
	if code == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		resp.Message = "internal error"
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return parseID("id", mux.Vars(r)["id"])
}

func parseID(name, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

const dateLayout = "2006-01-02"

func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var res domain.Resource
	if err := decode(r, &res); err != nil {
		writeError(w, err)
		return
	}
	if err := h.catalog.CreateResource(r.Context(), &res); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.catalog.GetResource(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type capacityBody struct {
	Capacity int `json:"capacity"`
}

func (h *Handler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body capacityBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.catalog.SetCapacity(r.Context(), id, body.Capacity)
	respond(w, res, err)
}

func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.catalog.ListResources(r.Context(), businessID)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Resource{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": list})
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.catalog.GetPolicy(r.Context(), businessID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var p domain.BookingPolicy
	if err := decode(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.BusinessID = businessID
	if err := h.catalog.SavePolicy(r.Context(), &p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := h.bookings.DeleteBusiness(r.Context(), businessID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"business_id": businessID, "bookings_closed": n})
}

// scheduleBody is the wire form of a schedule template. Weekly keys are
// weekday names or numbers, 0 being Sunday.
type scheduleBody struct {
	Weekly     map[string][]domain.Window `json:"weekly"`
	Exceptions map[string][]domain.Window `json:"exceptions"`
	UpdatedAt  *time.Time                 `json:"updated_at,omitempty"`
}

func scheduleFromTemplate(t *domain.ScheduleTemplate) scheduleBody {
	body := scheduleBody{
		Weekly:     make(map[string][]domain.Window, len(t.Weekly)),
		Exceptions: make(map[string][]domain.Window, len(t.Exceptions)),
		UpdatedAt:  &t.UpdatedAt,
	}
	for day, ws := range t.Weekly {
		body.Weekly[strings.ToLower(day.String())] = ws
	}
	for key, ws := range t.Exceptions {
		body.Exceptions[key] = ws
	}
	return body
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.catalog.GetTemplate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleFromTemplate(t))
}

func (h *Handler) SaveSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body scheduleBody
	if err := decode(r, &body); err != nil {
		writeError(w, err)
		return
	}

	t := &domain.ScheduleTemplate{ResourceID: id}
	for name, ws := range body.Weekly {
		day, ok := domain.ParseWeekday(name)
		if !ok {
			writeError(w, badRequest("unknown weekday %q", name))
			return
		}
		t.SetWeekday(day, ws...)
	}
	for key, ws := range body.Exceptions {
		if t.Exceptions == nil {
			t.Exceptions = make(map[string][]domain.Window)
		}
		t.Exceptions[key] = append([]domain.Window{}, ws...)
	}

	if err := h.catalog.SaveTemplate(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleFromTemplate(t))
}

type slotsResponse struct {
	ResourceID string            `json:"resource_id"`
	Slots      []domain.TimeSlot `json:"slots"`
	// Truncated is set when more slots exist than one response carries.
	Truncated bool `json:"truncated"`
}

// ListSlots serves GET /resources/{id}/slots?duration_mins=60&from=2024-06-03&to=2024-06-07.
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()

	mins, err := strconv.Atoi(q.Get("duration_mins"))
	if err != nil || mins <= 0 {
		writeError(w, badRequest("duration_mins must be a positive integer"))
		return
	}
	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		writeError(w, badRequest("from must be yyyy-mm-dd"))
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse(dateLayout, raw); err != nil {
			writeError(w, badRequest("to must be yyyy-mm-dd"))
			return
		}
	}
	limit := h.maxSlots
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, h.maxSlots)
	}

	seq, err := h.availability.SlotsForResource(r.Context(), id, time.Duration(mins)*time.Minute, domain.NewDateRange(from, to))
	if err != nil {
		writeError(w, err)
		return
	}

	resp := slotsResponse{ResourceID: id.String(), Slots: []domain.TimeSlot{}}
	for slot := range seq {
		if len(resp.Slots) == limit {
			resp.Truncated = true
			break
		}
		resp.Slots = append(resp.Slots, slot)
	}
	if err := r.Context().Err(); err != nil {
		// client went away mid-generation
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CheckAvailability serves GET /resources/{id}/availability?start=...&end=...&quantity=2.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, badRequest("start must be RFC 3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, badRequest("end must be RFC 3339"))
		return
	}
	quantity := 1
	if raw := q.Get("quantity"); raw != "" {
		if quantity, err = strconv.Atoi(raw); err != nil || quantity < 1 {
			writeError(w, badRequest("quantity must be a positive integer"))
			return
		}
	}

	iv := domain.NewInterval(start, end)
	conflict, err := h.conflicts.WouldConflict(r.Context(), id, iv, quantity, uuid.Nil)
	if err != nil {
		writeError(w, err)
		return
	}
	remaining, err := h.conflicts.CapacityRemaining(r.Context(), id, iv)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource_id": id,
		"start_time":  start,
		"end_time":    end,
		"remaining":   remaining,
		"available":   !conflict,
	})
}

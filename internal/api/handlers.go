package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salonflow/scheduling/internal/appointment"
	"github.com/salonflow/scheduling/internal/catalog"
	"github.com/salonflow/scheduling/internal/clients"
	redisclient "github.com/salonflow/scheduling/internal/redis"
)

type AppointmentHandler struct {
	svc *appointment.Service
}

func NewAppointmentHandler(svc *appointment.Service) *AppointmentHandler {
	return &AppointmentHandler{svc: svc}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	businessID, err := uuid.Parse(req.BusinessID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_id must be a UUID")
		return
	}
	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "client_id must be a UUID")
		return
	}
	professionalID, err := uuid.Parse(req.ProfessionalID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "professional_id must be a UUID")
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "start_time must be RFC 3339")
		return
	}

	appt, err := h.svc.Create(r.Context(), appointment.CreateParams{
		BusinessID:     businessID,
		ClientID:       clientID,
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		StartTime:      startTime,
		Notes:          req.Notes,
	})
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	appt, err := h.svc.GetByID(r.Context(), id)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	var params appointment.UpdateParams
	if req.ProfessionalID != nil {
		professionalID, err := uuid.Parse(*req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "professional_id must be a UUID")
			return
		}
		params.ProfessionalID = &professionalID
	}
	if req.ServiceID != nil {
		serviceID, err := uuid.Parse(*req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
			return
		}
		params.ServiceID = &serviceID
	}
	if req.StartTime != nil {
		startTime, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "start_time must be RFC 3339")
			return
		}
		params.StartTime = &startTime
	}
	params.Notes = req.Notes

	appt, err := h.svc.Update(r.Context(), id, params)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req CancelAppointmentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	appt, err := h.svc.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Complete)
}

func (h *AppointmentHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkNoShow)
}

func (h *AppointmentHandler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	appt, err := fn(r.Context(), id)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) ListByClient(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "business id must be a UUID")
		return
	}
	clientID, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "client id must be a UUID")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	appts, err := h.svc.ListByClient(r.Context(), businessID, clientID, limit, offset)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AppointmentHandler) ListByDate(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "business id must be a UUID")
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	appts, err := h.svc.ListByBusinessDate(r.Context(), businessID, date)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "business id must be a UUID")
		return
	}
	professionalID, err := uuid.Parse(r.URL.Query().Get("professional_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "professional_id must be a UUID")
		return
	}
	serviceID, err := uuid.Parse(r.URL.Query().Get("service_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.svc.Availability(r.Context(), businessID, professionalID, date, serviceID)
	if err != nil {
		writeAppointmentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Date:           date.Format("2006-01-02"),
		ProfessionalID: professionalID,
		ServiceID:      serviceID,
		Slots:          slots,
	})
}

func writeAppointmentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "appointment does not exist")
	case errors.Is(err, catalog.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", "service does not exist or is inactive")
	case errors.Is(err, clients.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", "client does not exist")
	case errors.Is(err, appointment.ErrTimeConflict):
		writeError(w, http.StatusConflict, "time_conflict", "the professional already has an appointment in this window")
	case errors.Is(err, appointment.ErrBookingInProgress),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "booking_in_progress", "another booking for this professional is in flight, retry shortly")
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", "appointment status does not allow this operation")
	case isTransientStoreError(err):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "persistence layer unavailable, retry with backoff")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

// isTransientStoreError classifies failures the caller should retry with
// backoff: timeouts and Postgres connection-class (08xxx) or shutdown-class
// (57xxx) errors. Ambiguous writes are not retried here; the caller decides.
func isTransientStoreError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "57":
			return true
		}
	}
	return pgconn.Timeout(err)
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

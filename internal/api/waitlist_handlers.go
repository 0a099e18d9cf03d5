package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/schedule"
	"github.com/salonflow/scheduling/internal/waitlist"
)

type WaitlistHandler struct {
	svc *waitlist.Service
}

func NewWaitlistHandler(svc *waitlist.Service) *WaitlistHandler {
	return &WaitlistHandler{svc: svc}
}

func (h *WaitlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddWaitlistRequest
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
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	var professionalID *uuid.UUID
	if req.ProfessionalID != nil {
		parsed, err := uuid.Parse(*req.ProfessionalID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "professional_id must be a UUID")
			return
		}
		professionalID = &parsed
	}
	desiredDate, err := time.Parse("2006-01-02", req.DesiredDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "desired_date must be YYYY-MM-DD")
		return
	}

	entry, err := h.svc.Add(r.Context(), waitlist.AddParams{
		BusinessID:     businessID,
		ClientID:       clientID,
		ServiceID:      serviceID,
		ProfessionalID: professionalID,
		DesiredDate:    desiredDate,
		DesiredPeriod:  schedule.Period(req.DesiredPeriod),
		Priority:       req.Priority,
	})
	if err != nil {
		writeWaitlistError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWaitlistResponse(entry))
}

func (h *WaitlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	entry, err := h.svc.Remove(r.Context(), id)
	if err != nil {
		writeWaitlistError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func (h *WaitlistHandler) Convert(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req ConvertWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	appointmentID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "appointment_id must be a UUID")
		return
	}

	entry, err := h.svc.Convert(r.Context(), id, appointmentID)
	if err != nil {
		writeWaitlistError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWaitlistResponse(entry))
}

func writeWaitlistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", "waitlist entry does not exist")
	case errors.Is(err, clients.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", "client does not exist")
	case errors.Is(err, waitlist.ErrWaitlistFull):
		writeError(w, http.StatusUnprocessableEntity, "waitlist_full", "client already holds the maximum number of waiting entries")
	case errors.Is(err, waitlist.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "duplicate_entry", "client is already waiting for this service and date")
	case errors.Is(err, waitlist.ErrEntryResolved):
		writeError(w, http.StatusConflict, "entry_resolved", "waitlist entry is already resolved")
	case errors.Is(err, waitlist.ErrInvalidPeriod):
		writeError(w, http.StatusBadRequest, "invalid_request", "desired_period must be morning, afternoon, evening or any")
	case isTransientStoreError(err):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "persistence layer unavailable, retry with backoff")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}

package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/appointment"
	"github.com/salonflow/scheduling/internal/waitlist"
)

type CreateAppointmentRequest struct {
	BusinessID     string  `json:"business_id"`
	ClientID       string  `json:"client_id"`
	ProfessionalID string  `json:"professional_id"`
	ServiceID      string  `json:"service_id"`
	StartTime      string  `json:"start_time"` // RFC 3339
	Notes          *string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	ProfessionalID *string `json:"professional_id,omitempty"`
	ServiceID      *string `json:"service_id,omitempty"`
	StartTime      *string `json:"start_time,omitempty"` // RFC 3339
	Notes          *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	BusinessID         uuid.UUID  `json:"business_id"`
	ClientID           uuid.UUID  `json:"client_id"`
	ProfessionalID     uuid.UUID  `json:"professional_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	Status             string     `json:"status"`
	Notes              *string    `json:"notes,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	ReminderSentAt     *time.Time `json:"reminder_sent_at,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		BusinessID:         a.BusinessID,
		ClientID:           a.ClientID,
		ProfessionalID:     a.ProfessionalID,
		ServiceID:          a.ServiceID,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		ConfirmedAt:        a.ConfirmedAt,
		ReminderSentAt:     a.ReminderSentAt,
	}
}

type AvailabilityResponse struct {
	Date           string             `json:"date"`
	ProfessionalID uuid.UUID          `json:"professional_id"`
	ServiceID      uuid.UUID          `json:"service_id"`
	Slots          []appointment.Slot `json:"slots"`
}

type AddWaitlistRequest struct {
	BusinessID     string  `json:"business_id"`
	ClientID       string  `json:"client_id"`
	ServiceID      string  `json:"service_id"`
	ProfessionalID *string `json:"professional_id,omitempty"`
	DesiredDate    string  `json:"desired_date"` // YYYY-MM-DD
	DesiredPeriod  string  `json:"desired_period,omitempty"`
	Priority       int     `json:"priority,omitempty"`
}

type ConvertWaitlistRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type WaitlistEntryResponse struct {
	ID                     uuid.UUID  `json:"id"`
	BusinessID             uuid.UUID  `json:"business_id"`
	ClientID               uuid.UUID  `json:"client_id"`
	ServiceID              uuid.UUID  `json:"service_id"`
	ProfessionalID         *uuid.UUID `json:"professional_id,omitempty"`
	DesiredDate            string     `json:"desired_date"`
	DesiredPeriod          string     `json:"desired_period"`
	Status                 string     `json:"status"`
	Priority               int        `json:"priority"`
	NotifiedAt             *time.Time `json:"notified_at,omitempty"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
	ConvertedAppointmentID *uuid.UUID `json:"converted_appointment_id,omitempty"`
}

func toWaitlistResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:                     e.ID,
		BusinessID:             e.BusinessID,
		ClientID:               e.ClientID,
		ServiceID:              e.ServiceID,
		ProfessionalID:         e.ProfessionalID,
		DesiredDate:            e.DesiredDate.Format("2006-01-02"),
		DesiredPeriod:          string(e.DesiredPeriod),
		Status:                 string(e.Status),
		Priority:               e.Priority,
		NotifiedAt:             e.NotifiedAt,
		ExpiresAt:              e.ExpiresAt,
		ConvertedAppointmentID: e.ConvertedAppointmentID,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

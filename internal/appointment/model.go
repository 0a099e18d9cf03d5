package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further lifecycle transition is defined.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

type Appointment struct {
	ID                 uuid.UUID
	BusinessID         uuid.UUID
	ClientID           uuid.UUID
	ProfessionalID     uuid.UUID
	ServiceID          uuid.UUID
	StartTime          time.Time
	EndTime            time.Time // always start + service duration
	Status             Status
	Notes              *string
	CancellationReason *string
	ConfirmedAt        *time.Time
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Slot is one entry of an availability response: a candidate start time and
// whether it can still be booked.
type Slot struct {
	Time      string    `json:"time"` // business-local "HH:MM" label
	StartsAt  time.Time `json:"starts_at"`
	Available bool      `json:"available"`
}

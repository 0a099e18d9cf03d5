package waitlist

import (
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/schedule"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusConverted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// MaxWaitingPerClient caps a client's simultaneous WAITING entries
// business-wide.
const MaxWaitingPerClient = 3

type Entry struct {
	ID                     uuid.UUID
	BusinessID             uuid.UUID
	ClientID               uuid.UUID
	ServiceID              uuid.UUID
	ProfessionalID         *uuid.UUID // nil = any professional
	DesiredDate            time.Time  // date only
	DesiredPeriod          schedule.Period
	Status                 Status
	Priority               int // lower is served first, ties broken by creation order
	NotifiedAt             *time.Time
	ExpiresAt              *time.Time // exactly NotifiedAt + hold duration
	ConvertedAppointmentID *uuid.UUID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

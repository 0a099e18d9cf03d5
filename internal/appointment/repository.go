package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrTimeConflict means the requested window overlaps a pending or
	// confirmed appointment for the professional. Returned by the conflict
	// check and by the store when the exclusion constraint catches a racing
	// writer.
	ErrTimeConflict = errors.New("time window conflicts with an existing appointment")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// HasOverlap is the conflict detector: true when any pending/confirmed
	// appointment for the professional intersects [start, end). excludeID
	// lets a reschedule ignore its own row.
	HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error)

	// ListActiveBetween returns pending/confirmed appointments for the
	// professional intersecting [from, to), for availability computation.
	ListActiveBetween(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Create persists a new pending appointment. A racing writer that slips
	// past the advisory lock is rejected by the store's exclusion constraint
	// and surfaces as ErrTimeConflict.
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateSchedule rewrites time/professional/service/notes for a
	// non-terminal appointment. Same conflict semantics as Create.
	UpdateSchedule(ctx context.Context, a *Appointment) (*Appointment, error)

	// UpdateStatus transitions status iff the current status is in from;
	// ErrAppointmentNotFound when the compare-and-swap misses.
	UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error)

	MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)
	MarkCancelled(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error

	// Reads for the API layer.
	ListByClient(ctx context.Context, businessID, clientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByBusinessDate(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]Appointment, error)
}

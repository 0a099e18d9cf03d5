package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/schedule"
)

var ErrEntryNotFound = errors.New("waitlist entry not found")

// Repository contains all DB interactions needed by the service. Status
// transitions are compare-and-swap: they match the current status in the
// WHERE clause and report ErrEntryNotFound when they miss, which is how
// racing promoters and sweeps stay out of each other's way.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Create(ctx context.Context, e *Entry) (*Entry, error)

	CountWaitingForClient(ctx context.Context, businessID, clientID uuid.UUID) (int, error)
	HasWaitingDuplicate(ctx context.Context, businessID, clientID, serviceID uuid.UUID, date time.Time) (bool, error)

	// FindCandidate returns the highest-priority WAITING entry matching the
	// freed slot: same business and date, compatible period, and either no
	// professional preference or the freed slot's professional.
	FindCandidate(ctx context.Context, businessID uuid.UUID, date time.Time, period schedule.Period, professionalID *uuid.UUID) (*Entry, error)

	MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) (*Entry, error)
	MarkExpired(ctx context.Context, id uuid.UUID) (*Entry, error)
	MarkCancelled(ctx context.Context, id uuid.UUID) (*Entry, error)
	MarkConverted(ctx context.Context, id uuid.UUID, appointmentID uuid.UUID) (*Entry, error)

	// FindExpiredNotified returns NOTIFIED entries whose hold lapsed before now.
	FindExpiredNotified(ctx context.Context, now time.Time) ([]Entry, error)
}

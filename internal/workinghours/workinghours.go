// Package workinghours is the Working-Hours Store collaborator: at most one
// active record per (business, professional, weekday), with a NULL
// professional row acting as the business-wide default.
package workinghours

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotConfigured = errors.New("working hours not configured")

type Record struct {
	ID             uuid.UUID
	BusinessID     uuid.UUID
	ProfessionalID *uuid.UUID // nil = business default
	DayOfWeek      time.Weekday
	StartTime      string // "HH:MM"
	EndTime        string // "HH:MM"
	BreakStart     *string
	BreakEnd       *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *Record) HasBreak() bool {
	return r.BreakStart != nil && r.BreakEnd != nil
}

type Store interface {
	// GetActive resolves the active record for the professional on the given
	// weekday, falling back to the business default. ErrNotConfigured means
	// the professional simply does not work that day.
	GetActive(ctx context.Context, businessID, professionalID uuid.UUID, day time.Weekday) (*Record, error)
}

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) GetActive(ctx context.Context, businessID, professionalID uuid.UUID, day time.Weekday) (*Record, error) {
	// Professional-specific rows win over the business default.
	row := s.pool.QueryRow(ctx, `
		SELECT id, business_id, professional_id, day_of_week, start_time, end_time,
		       break_start, break_end, is_active, created_at, updated_at
		FROM working_hours
		WHERE business_id = $1
		  AND (professional_id = $2 OR professional_id IS NULL)
		  AND day_of_week = $3
		  AND is_active
		ORDER BY professional_id NULLS LAST
		LIMIT 1
	`, businessID, professionalID, int(day))
	return scanRecord(row)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var professionalID *uuid.UUID
	var day int
	var breakStart, breakEnd *string

	err := row.Scan(
		&r.ID,
		&r.BusinessID,
		&professionalID,
		&day,
		&r.StartTime,
		&r.EndTime,
		&breakStart,
		&breakEnd,
		&r.IsActive,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}

	r.ProfessionalID = professionalID
	r.DayOfWeek = time.Weekday(day)
	r.BreakStart = breakStart
	r.BreakEnd = breakEnd
	return &r, nil
}

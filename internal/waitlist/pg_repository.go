package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salonflow/scheduling/internal/schedule"
)

const entryColumns = `id, business_id, client_id, service_id, professional_id,
	desired_date, desired_period, status, priority,
	notified_at, expires_at, converted_appointment_id, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var professionalID, convertedID *uuid.UUID
	var notifiedAt, expiresAt *time.Time

	err := row.Scan(
		&e.ID,
		&e.BusinessID,
		&e.ClientID,
		&e.ServiceID,
		&professionalID,
		&e.DesiredDate,
		&e.DesiredPeriod,
		&e.Status,
		&e.Priority,
		&notifiedAt,
		&expiresAt,
		&convertedID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.ProfessionalID = professionalID
	e.NotifiedAt = notifiedAt
	e.ExpiresAt = expiresAt
	e.ConvertedAppointmentID = convertedID
	return &e, nil
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) Create(ctx context.Context, e *Entry) (*Entry, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (id, business_id, client_id, service_id, professional_id,
			desired_date, desired_period, status, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'waiting', $8, now(), now())
		RETURNING `+entryColumns+`
	`, id, e.BusinessID, e.ClientID, e.ServiceID, e.ProfessionalID, e.DesiredDate, e.DesiredPeriod, e.Priority)

	return scanEntry(row)
}

func (r *PgRepository) CountWaitingForClient(ctx context.Context, businessID, clientID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM waitlist_entries
		WHERE business_id = $1 AND client_id = $2 AND status = 'waiting'
	`, businessID, clientID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) HasWaitingDuplicate(ctx context.Context, businessID, clientID, serviceID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM waitlist_entries
			WHERE business_id = $1 AND client_id = $2 AND service_id = $3
			  AND desired_date = $4 AND status = 'waiting'
		)
	`, businessID, clientID, serviceID, date).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) FindCandidate(ctx context.Context, businessID uuid.UUID, date time.Time, period schedule.Period, professionalID *uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE business_id = $1
		  AND desired_date = $2
		  AND status = 'waiting'
		  AND ($3 = 'any' OR desired_period = 'any' OR desired_period = $3)
		  AND ($4::uuid IS NULL OR professional_id IS NULL OR professional_id = $4)
		ORDER BY priority, created_at
		LIMIT 1
	`, businessID, date, string(period), professionalID)
	return scanEntry(row)
}

func (r *PgRepository) MarkNotified(ctx context.Context, id uuid.UUID, notifiedAt, expiresAt time.Time) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'notified',
		    notified_at = $2,
		    expires_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'waiting'
		RETURNING `+entryColumns+`
	`, id, notifiedAt, expiresAt)
	return scanEntry(row)
}

func (r *PgRepository) MarkExpired(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'expired',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'notified'
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('waiting', 'notified')
		RETURNING `+entryColumns+`
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) MarkConverted(ctx context.Context, id uuid.UUID, appointmentID uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'converted',
		    converted_appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('waiting', 'notified')
		RETURNING `+entryColumns+`
	`, id, appointmentID)
	return scanEntry(row)
}

func (r *PgRepository) FindExpiredNotified(ctx context.Context, now time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE status = 'notified'
		  AND expires_at < $1
		ORDER BY expires_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

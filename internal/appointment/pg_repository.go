package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// exclusion_violation, raised by the no-overlap constraint on appointments.
const pgExclusionViolation = "23P01"

const appointmentColumns = `id, business_id, client_id, professional_id, service_id,
	start_time, end_time, status, notes, cancellation_reason,
	confirmed_at, reminder_sent_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes, reason *string
	var confirmedAt, reminderSentAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ClientID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&notes,
		&reason,
		&confirmedAt,
		&reminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Notes = notes
	a.CancellationReason = reason
	a.ConfirmedAt = confirmedAt
	a.ReminderSentAt = reminderSentAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
		return ErrTimeConflict
	}
	return err
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) HasOverlap(ctx context.Context, professionalID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE professional_id = $1
			  AND status = ANY($2::text[])
			  AND start_time < $4
			  AND $3 < end_time
			  AND ($5::uuid IS NULL OR id <> $5)
		)
	`, professionalID, statusStrings(activeStatuses), start, end, excludeID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) ListActiveBetween(ctx context.Context, professionalID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND status = ANY($2::text[])
		  AND start_time < $4
		  AND $3 < end_time
		ORDER BY start_time
	`, professionalID, statusStrings(activeStatuses), from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, business_id, client_id, professional_id, service_id,
			start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.BusinessID, a.ClientID, a.ProfessionalID, a.ServiceID, a.StartTime, a.EndTime, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapConflict(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET professional_id = $2,
		    service_id = $3,
		    start_time = $4,
		    end_time = $5,
		    notes = $6,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($7::text[])
		RETURNING `+appointmentColumns+`
	`, a.ID, a.ProfessionalID, a.ServiceID, a.StartTime, a.EndTime, a.Notes, statusStrings(activeStatuses))

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapConflict(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []Status, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3::text[])
		RETURNING `+appointmentColumns+`
	`, id, to, statusStrings(from))

	return scanAppointment(row)
}

func (r *PgRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'confirmed',
		    confirmed_at = COALESCE(confirmed_at, $2),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3::text[])
		RETURNING `+appointmentColumns+`
	`, id, at, statusStrings(activeStatuses))

	return scanAppointment(row)
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3::text[])
		RETURNING `+appointmentColumns+`
	`, id, reason, statusStrings(activeStatuses))

	return scanAppointment(row)
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	return err
}

func (r *PgRepository) ListByClient(ctx context.Context, businessID, clientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND client_id = $2
		ORDER BY start_time DESC
		LIMIT $3 OFFSET $4
	`, businessID, clientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByBusinessDate(ctx context.Context, businessID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

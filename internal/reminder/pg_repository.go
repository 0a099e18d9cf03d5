package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSent      JobStatus = "sent"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

type Job struct {
	ID            int64
	JobKey        string
	AppointmentID uuid.UUID
	Phone         string
	Body          string
	RunAt         time.Time
	Status        JobStatus
	Attempts      int
	MaxAttempts   int
	NextRunAt     time.Time
}

type PgScheduler struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewPgScheduler(pool *pgxpool.Pool, maxAttempts int) *PgScheduler {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &PgScheduler{pool: pool, maxAttempts: maxAttempts}
}

func (s *PgScheduler) ScheduleAt(ctx context.Context, at time.Time, appointmentID uuid.UUID, phone, text, key string) error {
	// A pending job under the same key is left as is. A cancelled, sent or
	// failed one is revived for the new fire time, which is what re-arms the
	// reminder after a reschedule retracted the old job.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminder_jobs (job_key, appointment_id, phone, body, run_at, next_run_at, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $5, 'pending', $6)
		ON CONFLICT (job_key) DO UPDATE
		SET appointment_id = EXCLUDED.appointment_id,
		    phone = EXCLUDED.phone,
		    body = EXCLUDED.body,
		    run_at = EXCLUDED.run_at,
		    next_run_at = EXCLUDED.next_run_at,
		    status = 'pending',
		    attempts = 0,
		    last_error = NULL,
		    updated_at = now()
		WHERE reminder_jobs.status IN ('cancelled', 'sent', 'failed')
	`, key, appointmentID, phone, text, at, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	return nil
}

func (s *PgScheduler) Cancel(ctx context.Context, key string) error {
	// Only a job that has not fired can be retracted; a sent job stays sent.
	_, err := s.pool.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE job_key = $1 AND status = 'pending'
	`, key)
	if err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return nil
}

func (s *PgScheduler) fetchDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]Job, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, job_key, appointment_id, phone, body, run_at, status, attempts, max_attempts, next_run_at
		FROM reminder_jobs
		WHERE status = 'pending' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.JobKey, &j.AppointmentID, &j.Phone, &j.Body, &j.RunAt,
			&j.Status, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return jobs, nil
}

func (s *PgScheduler) markSent(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET status = 'sent', updated_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (s *PgScheduler) markFailed(ctx context.Context, tx pgx.Tx, j Job, nextRunAt time.Time, lastError string) error {
	attempts := j.Attempts + 1
	status := JobPending
	if attempts >= j.MaxAttempts {
		status = JobFailed
	}
	_, err := tx.Exec(ctx, `
		UPDATE reminder_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, j.ID, attempts, status, nextRunAt, lastError)
	return err
}

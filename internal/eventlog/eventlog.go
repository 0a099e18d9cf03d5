// Package eventlog appends lifecycle events to the event_logs table.
// Recording is best-effort: callers log failures and move on, an event
// that failed to persist never fails the operation that produced it.
package eventlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID        int64
	EventType string
	EntityID  *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Record(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.EntityID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Noop discards events; used in tests.
type Noop struct{}

func (Noop) Record(ctx context.Context, ev Event) error {
	return nil
}

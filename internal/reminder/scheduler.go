// Package reminder implements the delayed-notification collaborator as a
// Postgres due-table polled by a worker. Jobs are keyed so a cancellation
// can retract a reminder that has not fired yet.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Key builds the job key for an appointment's reminder, so create, reschedule
// and cancel all address the same job.
func Key(appointmentID uuid.UUID) string {
	return fmt.Sprintf("reminder:%s", appointmentID)
}

// Scheduler arms and retracts delayed notifications. ScheduleAt is keyed:
// a pending job under the same key is left untouched, while a cancelled or
// already-fired one is revived with the new fire time. Cancel of an unknown
// or already-fired key is a no-op. Both are safe to call best-effort.
type Scheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, appointmentID uuid.UUID, phone, text, key string) error
	Cancel(ctx context.Context, key string) error
}

// NoopScheduler discards schedule requests; used in tests.
type NoopScheduler struct{}

func (NoopScheduler) ScheduleAt(_ context.Context, _ time.Time, _ uuid.UUID, _, _, _ string) error {
	return nil
}

func (NoopScheduler) Cancel(_ context.Context, _ string) error {
	return nil
}

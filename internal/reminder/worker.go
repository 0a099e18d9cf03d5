package reminder

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salonflow/scheduling/internal/notify"
)

// Worker polls the due-table and hands due reminders to the dispatcher.
// Claimed rows are locked with SKIP LOCKED so multiple workers never
// double-send a job.
type Worker struct {
	pool       *pgxpool.Pool
	sched      *PgScheduler
	dispatcher notify.Dispatcher
	interval   time.Duration
	batchSize  int
	backoff    time.Duration

	// OnSent is invoked after a successful dispatch, outside the claim
	// transaction; the API server wires it to stamp reminder_sent_at.
	OnSent func(ctx context.Context, appointmentID uuid.UUID)
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	Backoff   time.Duration
}

func NewWorker(pool *pgxpool.Pool, sched *PgScheduler, dispatcher notify.Dispatcher, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	return &Worker{
		pool:       pool,
		sched:      sched,
		dispatcher: dispatcher,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				log.Printf("reminder batch failed: %v", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	jobs, err := w.sched.fetchDue(ctx, tx, time.Now(), w.batchSize)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return tx.Commit(ctx)
	}

	var sent []uuid.UUID
	for _, job := range jobs {
		if err := w.dispatcher.Send(ctx, job.Phone, job.Body); err != nil {
			log.Printf("reminder dispatch failed key=%s attempt=%d: %v", job.JobKey, job.Attempts+1, err)
			if err := w.sched.markFailed(ctx, tx, job, time.Now().Add(w.backoff), err.Error()); err != nil {
				return err
			}
			continue
		}

		if err := w.sched.markSent(ctx, tx, job.ID); err != nil {
			return err
		}
		sent = append(sent, job.AppointmentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if w.OnSent != nil {
		for _, id := range sent {
			w.OnSent(ctx, id)
		}
	}

	return nil
}

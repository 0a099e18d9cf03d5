package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/salonflow/scheduling/internal/appointment"
	"github.com/salonflow/scheduling/internal/config"
	"github.com/salonflow/scheduling/internal/db"
	"github.com/salonflow/scheduling/internal/notify"
	"github.com/salonflow/scheduling/internal/reminder"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running reminder worker in env=%s poll=%s retries=%d", cfg.Env, cfg.ReminderPoll, cfg.ReminderRetries)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	var dispatcher notify.Dispatcher
	if cfg.NotifyURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.NotifyURL, cfg.NotifyToken)
	} else {
		dispatcher = notify.NewNoop()
	}

	sched := reminder.NewPgScheduler(pgPool, cfg.ReminderRetries)
	worker := reminder.NewWorker(pgPool, sched, dispatcher, reminder.WorkerConfig{
		Interval: cfg.ReminderPoll,
	})

	repo := appointment.NewPgRepository(pgPool)
	worker.OnSent = func(ctx context.Context, appointmentID uuid.UUID) {
		if err := repo.MarkReminderSent(ctx, appointmentID, time.Now()); err != nil {
			log.Printf("failed to stamp reminder_sent_at for appointment %s: %v", appointmentID, err)
		}
	}

	worker.Run(rootCtx)

	log.Println("shutdown signal received, reminder worker stopped")
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/config"
	"github.com/salonflow/scheduling/internal/db"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/notify"
	"github.com/salonflow/scheduling/internal/waitlist"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("expiry-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running expiry worker in env=%s interval=%s hold_ttl=%s", cfg.Env, cfg.SweepInterval, cfg.WaitlistHoldTTL)

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

	svc := waitlist.NewService(waitlist.Deps{
		Repo:       waitlist.NewPgRepository(pgPool),
		Clients:    clients.NewPgDirectory(pgPool),
		Dispatcher: dispatcher,
		Events:     eventlog.NewPgRecorder(pgPool),
		Clock:      clock.Real{},
		HoldTTL:    cfg.WaitlistHoldTTL,
	})

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *waitlist.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.ExpireNotified(runCtx); err != nil {
		log.Printf("expiry sweep error: %v", err)
		return
	}
	log.Printf("expiry sweep complete in %s", time.Since(start))
}

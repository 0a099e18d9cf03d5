package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/salonflow/scheduling/internal/api"
	"github.com/salonflow/scheduling/internal/appointment"
	"github.com/salonflow/scheduling/internal/catalog"
	"github.com/salonflow/scheduling/internal/clients"
	"github.com/salonflow/scheduling/internal/clock"
	"github.com/salonflow/scheduling/internal/config"
	"github.com/salonflow/scheduling/internal/db"
	"github.com/salonflow/scheduling/internal/eventlog"
	"github.com/salonflow/scheduling/internal/notify"
	redisclient "github.com/salonflow/scheduling/internal/redis"
	"github.com/salonflow/scheduling/internal/reminder"
	"github.com/salonflow/scheduling/internal/waitlist"
	"github.com/salonflow/scheduling/internal/workinghours"
)

const version = "1.0.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

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

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	var dispatcher notify.Dispatcher
	if cfg.NotifyURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.NotifyURL, cfg.NotifyToken)
		log.Printf("notifications via webhook url=%s", cfg.NotifyURL)
	} else {
		dispatcher = notify.NewNoop()
		log.Println("notifications disabled (no NOTIFY_WEBHOOK_URL)")
	}

	events := eventlog.NewPgRecorder(pgPool)
	directory := clients.NewPgDirectory(pgPool)
	clk := clock.Real{}

	waitlistSvc := waitlist.NewService(waitlist.Deps{
		Repo:       waitlist.NewPgRepository(pgPool),
		Clients:    directory,
		Dispatcher: dispatcher,
		Events:     events,
		Clock:      clk,
		HoldTTL:    cfg.WaitlistHoldTTL,
	})

	appointmentSvc := appointment.NewService(appointment.Deps{
		Repo:         appointment.NewPgRepository(pgPool),
		Locker:       redisclient.NewRedisProfessionalLocker(rdb, cfg.LockTTL),
		Catalog:      catalog.NewPgCatalog(pgPool),
		Hours:        workinghours.NewPgStore(pgPool),
		Clients:      directory,
		Stats:        directory,
		Dispatcher:   dispatcher,
		Reminders:    reminder.NewPgScheduler(pgPool, cfg.ReminderRetries),
		Events:       events,
		Promoter:     waitlistSvc,
		Clock:        clk,
		ReminderLead: cfg.ReminderLead,
	})

	router := api.NewRouter(api.RouterConfig{
		Appointments: api.NewAppointmentHandler(appointmentSvc),
		Waitlist:     api.NewWaitlistHandler(waitlistSvc),
		Health:       api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

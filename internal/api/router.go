package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Appointments *AppointmentHandler
	Waitlist     *WaitlistHandler
	Health       *HealthHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.Appointments.Create)
			r.Get("/{id}", cfg.Appointments.Get)
			r.Patch("/{id}", cfg.Appointments.Update)
			r.Post("/{id}/confirm", cfg.Appointments.Confirm)
			r.Post("/{id}/cancel", cfg.Appointments.Cancel)
			r.Post("/{id}/complete", cfg.Appointments.Complete)
			r.Post("/{id}/no-show", cfg.Appointments.NoShow)
		})

		r.Route("/businesses/{businessID}", func(r chi.Router) {
			r.Get("/availability", cfg.Appointments.Availability)
			r.Get("/appointments", cfg.Appointments.ListByDate)
			r.Get("/clients/{clientID}/appointments", cfg.Appointments.ListByClient)
		})

		r.Route("/waitlist", func(r chi.Router) {
			r.Post("/", cfg.Waitlist.Add)
			r.Delete("/{id}", cfg.Waitlist.Remove)
			r.Post("/{id}/convert", cfg.Waitlist.Convert)
		})
	})

	return r
}

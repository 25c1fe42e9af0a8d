package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/smartmed/scheduling/internal/booking"
	"github.com/smartmed/scheduling/internal/schedule"
)

type RouterConfig struct {
	Schedule  *schedule.Service
	Booking   *booking.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Everything else requires a session token.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Put("/staff/{id}/availability", saveAvailabilityHandler(cfg.Schedule))
		r.Get("/staff/{id}/availability", getAvailabilityHandler(cfg.Schedule))
		r.Get("/staff/{id}/slots", listSlotsHandler(cfg.Schedule))

		r.Post("/appointments", bookAppointmentHandler(cfg.Booking))
		r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
		r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Booking))
	})

	return r
}

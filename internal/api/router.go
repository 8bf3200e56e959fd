package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/slot-booking/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot lifecycle endpoints
	r.Get("/slots/available", listAvailableSlotsHandler(cfg.Service))
	r.Post("/slots/{id}/book", bookSlotHandler(cfg.Service))
	r.Post("/slots/{id}/cancel", cancelSlotHandler(cfg.Service))
	r.Post("/slots/{id}/reschedule", rescheduleSlotHandler(cfg.Service))
	r.Post("/slots/{id}/complete", completeSlotHandler(cfg.Service))

	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/slot-booking/internal/booking"
	"github.com/hackgods/slot-booking/internal/reservation"
	"github.com/hackgods/slot-booking/internal/slot"
	"github.com/hackgods/slot-booking/internal/slotgen"
	"github.com/hackgods/slot-booking/internal/status"
)

type RouterConfig struct {
	Store        slot.Store
	Generator    *slotgen.Generator
	Reservations *reservation.Manager
	Booking      *booking.Engine
	Status       *status.Authority
	PgPool       *pgxpool.Pool // nil with in-memory storage
	Redis        *redis.Client // nil when redis is disabled
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Provider calendar
	r.Route("/providers/{id}", func(r chi.Router) {
		r.Get("/candidates", candidatesHandler(cfg.Generator))
		r.Get("/slots", listSlotsHandler(cfg.Store))
		r.Post("/slots/provision", provisionHandler(cfg.Generator))
	})

	// Slot lifecycle
	r.Route("/slots/{id}", func(r chi.Router) {
		r.Get("/", getSlotHandler(cfg.Store))
		r.Delete("/", deleteSlotHandler(cfg.Store))

		r.Post("/reservation", reserveHandler(cfg.Reservations))
		r.Delete("/reservation", releaseHandler(cfg.Reservations))
		r.Get("/availability", availabilityHandler(cfg.Reservations))

		r.Post("/booking", bookHandler(cfg.Booking))
		r.Post("/status", statusHandler(cfg.Status))

		r.Get("/history", historyHandler(cfg.Store))
		r.Get("/payment", paymentHandler(cfg.Store))
	})

	return r
}

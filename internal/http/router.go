package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
	"github.com/robertarktes/seat-reservation-engine/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/v1/events/{id}/seats", h.GetEventSeats)

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(jwtSecret))
		r.Use(RateLimitMiddleware(rl))

		r.With(IdempotencyMiddleware).Post("/v1/reservations", h.CreateHold)
		r.Post("/v1/reservations/{id}/payment", h.Pay)
		r.Post("/v1/reservations/{id}/cancel", h.Cancel)
		r.Get("/v1/reservations", h.ListReservations)
		r.Get("/v1/reservations/my", h.ListMyReservations)
		r.Get("/v1/reservations/{id}", h.GetReservation)
	})

	return r
}

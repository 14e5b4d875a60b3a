// Package api serves the read-only status API over the ingested data.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/albapepper/cricket-data/internal/api/docs" // swagger docs
	"github.com/albapepper/cricket-data/internal/api/handler"
	"github.com/albapepper/cricket-data/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(st handler.Store, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled && cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	h := handler.New(st, cfg.StageMaxFailures, logger)

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/matches", h.ListMatches)
		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", h.GetMatch)
			r.Get("/scorecard", h.GetScorecard)
			r.Get("/awards", h.GetAwards)
			r.Get("/squad", h.GetSquad)
		})

		r.Get("/stages", h.GetStageStatus)
		r.Get("/stages/{stage}/pending", h.GetPendingMatches)
	})

	return r
}

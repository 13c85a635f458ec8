// Package api exposes the router to upstream callers over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikhilbhutani/factrouter/internal/api/handlers"
	"github.com/nikhilbhutani/factrouter/internal/api/middleware"
	"github.com/nikhilbhutani/factrouter/internal/config"
)

// Deps is everything the HTTP layer talks to.
type Deps struct {
	Analyzer handlers.Analyzer
	Status   handlers.StatusSource
	Checks   []handlers.Check
	Config   config.APIConfig
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	cfg := rt.deps.Config

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.EchoRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins, cfg.KeyHeader))

	// Health endpoints (no auth, no rate limit)
	health := handlers.NewHealthHandler(rt.deps.Checks...)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst)
	apikey := middleware.NewAPIKey(cfg.Key, cfg.KeyHeader)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apikey.Authenticate)
		r.Use(rl.Limit)

		analyzeH := handlers.NewAnalyzeHandler(rt.deps.Analyzer)
		r.Post("/analyze", analyzeH.Analyze)
		r.Post("/analyze/{id}/detail", analyzeH.Detail)
		r.Post("/speech", analyzeH.Speech)

		providersH := handlers.NewProvidersHandler(rt.deps.Status)
		r.Get("/providers", providersH.List)
	})

	return r
}

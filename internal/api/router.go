// Package api exposes runs, reports and stored papers over HTTP.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hoanghai1803/paperfeed/internal/api/handlers"
	"github.com/hoanghai1803/paperfeed/internal/metrics"
	"github.com/hoanghai1803/paperfeed/internal/storage"
)

// NewRouter creates and configures the HTTP router with all API routes, the
// health check and the Prometheus scrape endpoint.
func NewRouter(store *storage.Store, starter handlers.RunStarter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Get("/healthz", handlers.Health())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/runs", handlers.TriggerRun(starter))
		api.Get("/runs", handlers.ListRuns(store))
		api.Get("/runs/latest", handlers.GetLatestRun(store))
		api.Get("/runs/{id}", handlers.GetRun(store))
		api.Get("/runs/{id}/report", handlers.GetRunReport(store))

		api.Get("/papers", handlers.ListPapers(store))
	})

	return r
}

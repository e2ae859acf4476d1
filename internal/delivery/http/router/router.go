package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/leadflow-service/internal/delivery/http/handler"
	"github.com/user/leadflow-service/internal/delivery/http/middleware"
)

// DownloadPrefix is the path exported files are served under.
const DownloadPrefix = "/download"

// New builds the API router. Files in exportDir are served under
// DownloadPrefix when exportDir is set.
func New(h *handler.Handler, exportDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	// Browser frontends are served from other origins.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)

	r.Get("/api/health", h.HandleHealthCheck)
	r.Post("/api/scrape", h.HandleSubmitScrape)
	r.Get("/api/status/{id}", h.HandleGetStatus)
	r.Get("/api/tasks", h.HandleListTasks)

	// Prometheus metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	if exportDir != "" {
		fs := http.StripPrefix(DownloadPrefix+"/", http.FileServer(http.Dir(exportDir)))
		r.Handle(DownloadPrefix+"/*", fs)
	}

	return r
}

package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tourcast/tourcast/internal/api/tour"
	"github.com/tourcast/tourcast/internal/preview"
)

// Config contains the handlers the router mounts.
type Config struct {
	TourHandler    *tour.Handler
	PreviewHandler *preview.Handler
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are expected to be
// applied before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Client-Mode"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tours", cfg.TourHandler.CreateTour)
		r.Get("/tours/{fingerprint}", cfg.TourHandler.GetTour)
		r.Get("/tours/{fingerprint}/status", cfg.TourHandler.GetStatus)
		r.Post("/tours/{fingerprint}/retry", cfg.TourHandler.RetryTour)

		r.Get("/preview/{fingerprint}", cfg.PreviewHandler.GetPreview)
	})

	return r
}

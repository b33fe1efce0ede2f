package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/controller"
	"github.com/unclebandit/storecast-backend/internal/handler"
	"github.com/unclebandit/storecast-backend/internal/middleware"
)

type routerDeps struct {
	Broadcasts *controller.BroadcastController
	Catalog    *handler.CatalogHandler
	Health     *handler.HealthHandler
	// Verifier guards the scheduler callback. Without one the callback route is not mounted.
	Verifier       middleware.SignatureVerifier
	AllowedOrigins []string
	Logger         *zap.Logger
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Metrics)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", d.Health.Health)

		d.Catalog.Routes(r)

		r.Route("/broadcast", func(r chi.Router) {
			r.Post("/create", d.Broadcasts.Create)
			r.Post("/test", d.Broadcasts.Test)
			r.Post("/schedule", d.Broadcasts.Schedule)
			r.Get("/jobs", d.Broadcasts.ListJobs)
			r.Get("/jobs/{id}", d.Broadcasts.GetJob)

			if d.Verifier != nil {
				r.With(middleware.VerifySignature(d.Verifier, d.Logger)).
					Post("/execute", d.Broadcasts.ExecuteScheduled)
			}
		})
	})

	return r
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires the read-only API routes with the standard middleware
// stack.
func NewRouter(handlers *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", handlers.ListProducts)
		r.Get("/sku/{sku}", handlers.GetProductBySKU)
		r.Get("/{productID}", handlers.GetProduct)
		r.Get("/{productID}/history", handlers.GetProductHistory)
	})

	r.Route("/scraper-runs", func(r chi.Router) {
		r.Get("/", handlers.ListRuns)
		r.Get("/{runID}", handlers.GetRun)
	})

	r.Get("/stats", handlers.GetStats)

	return r
}

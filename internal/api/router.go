package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/rmaksim/inventory-service/internal/observability"
)

// NewRouter assembles the HTTP surface. The tracer sits outside the recoverer
// so panics are still recorded and logged as 500s.
func NewRouter(h *Handler, tracer *observability.Tracer, metrics *observability.Metrics, corsOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	r.Use(tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/", h.Root)
	r.Method("GET", "/metrics", metrics.Handler())
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Route("/inventory/items", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/{product_id}", h.Get)
			r.Put("/{product_id}", h.Update)
			r.Post("/{product_id}/adjust", h.Adjust)
			r.Get("/{product_id}/movements", h.Movements)
		})
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  Maps URL paths to handler functions.

MIDDLEWARE STACK (applied in order):
  1. Logger: Logs all HTTP requests (method, path, duration)
  2. Recoverer: Catches panics, returns 500 instead of crashing
  3. RequestID: Adds unique ID to each request for tracing
  4. CORS: Allows cross-origin requests from platform frontends

ROUTE STRUCTURE:
  /api/users/{id}/points*       Balance, history, sufficiency reads
  /api/users/{id}/awards/*      Earn paths
  /api/users/{id}/deductions    Unguarded spend
  /api/users/{id}/redemptions   Guarded spend
  /api/users/{id}/recalculate   Balance rebuild
  /api/admin/*                  Cross-user admin reads

SEE ALSO:
  - handlers.go: Handler implementations
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router with all routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/points", h.GetBalance)
			r.Get("/points/history", h.GetHistory)
			r.Get("/points/check", h.CheckPoints)
			r.Get("/audit", h.GetAudit)
			r.Get("/summary", h.GetSummary)

			r.Route("/awards", func(r chi.Router) {
				r.Post("/", h.AwardGeneric)
				r.Post("/registration", h.AwardRegistration)
				r.Post("/sighting", h.AwardSighting)
				r.Post("/share", h.AwardShare)
				r.Post("/project", h.AwardProject)
			})

			r.Post("/deductions", h.Deduct)
			r.Post("/redemptions", h.Redeem)
			r.Post("/recalculate", h.Recalculate)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/transactions", h.ListTransactions)
			r.Get("/summary", h.AdminSummary)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

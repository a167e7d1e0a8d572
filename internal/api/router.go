package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication when a secret is configured
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Domain endpoints
			r.Route("/domains", func(r chi.Router) {
				r.Get("/", s.handleListDomains)
				r.Route("/{qid}", func(r chi.Router) {
					r.Get("/", s.handleGetDomain)
					r.Get("/devices", s.handleListDomainDevices)
				})
			})

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Get("/{class}/{backend}/{ident}", s.handleGetDevice)
			})

			// Label endpoints
			r.Route("/labels", func(r chi.Router) {
				r.Get("/", s.handleListLabels)
				r.Get("/{name}", s.handleGetLabel)
			})

			// History journal endpoints
			r.Route("/history", func(r chi.Router) {
				r.Get("/transitions", s.handleHistoryTransitions)
				r.Get("/structural", s.handleHistoryStructural)
			})

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

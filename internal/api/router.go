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

	// Bare liveness probe for container orchestration and --health-check
	r.Get("/healthz", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Alarm engine operator surface
		r.Route("/alarms", func(r chi.Router) {
			r.Get("/status", s.handleAlarmStatus)
			r.Post("/reload", s.handleAlarmReload)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/acknowledge", s.handleAlarmAcknowledge)
				r.Post("/mute", s.handleAlarmMute)
				r.Post("/unmute", s.handleAlarmUnmute)
			})
		})

		// Alarm rule configuration
		r.Route("/alarm-rules", func(r chi.Router) {
			r.Get("/", s.handleListAlarmRules)
			r.Post("/", s.handleCreateAlarmRule)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAlarmRule)
				r.Put("/", s.handleUpdateAlarmRule)
				r.Delete("/", s.handleDeleteAlarmRule)
			})
		})

		// Interlock engine operator surface
		r.Route("/interlocks", func(r chi.Router) {
			r.Get("/", s.handleListInterlockRules)
			r.Post("/", s.handleCreateInterlockRule)
			r.Post("/reload", s.handleInterlockReload)
			r.Get("/permissions", s.handleInterlockPermissions)
			r.Get("/can-start/{name}", s.handleCanStart)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetInterlockRule)
				r.Put("/", s.handleUpdateInterlockRule)
				r.Delete("/", s.handleDeleteInterlockRule)
			})
		})

		// Equipment catalogue and manual control
		r.Route("/equipment", func(r chi.Router) {
			r.Get("/", s.handleListEquipment)
			r.Post("/", s.handleCreateEquipment)
			r.Get("/stats", s.handleEquipmentStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEquipment)
				r.Put("/", s.handleUpdateEquipment)
				r.Delete("/", s.handleDeleteEquipment)
			})

			r.Route("/name/{name}", func(r chi.Router) {
				r.Get("/status", s.handleEquipmentStatus)
				r.Post("/on", s.handleEquipmentOn)
				r.Post("/off", s.handleEquipmentOff)
			})
		})

		// Audit event log
		r.Get("/events", s.handleListEvents)

		// WebSocket for live alarm/interlock transitions
		r.Get("/ws", s.handleWebSocket)
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

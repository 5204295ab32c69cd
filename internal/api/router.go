package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.traceRequests)
	r.Use(limitBody)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/discover", s.handleDiscover)
		r.Get("/audit", s.handleListAudit)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/properties", s.handleGetProperties)
				r.Put("/properties", s.handleSetProperties)
				r.Post("/services/{service}", s.handleInvokeService)
				r.Post("/identify", s.handleIdentify)
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// healthCheckTimeout bounds each component probe.
const healthCheckTimeout = 2 * time.Second

// handleHealth reports the gateway link and every registered component.
// Any failure marks the status degraded; the response is always 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.gw.IsConnected() {
		status = "degraded"
	}

	components := make(map[string]string, len(s.checks))
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"version":           s.version,
		"gateway_id":        s.gw.ID(),
		"gateway_connected": s.gw.IsConnected(),
		"devices":           len(s.gw.Devices()),
		"websocket_clients": s.hub.Count(),
		"components":        components,
	})
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/ac-mqtt-bridge/internal/bridges/aircon"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetDeviceHistory)
			})
		})

		r.Post("/discovery", s.handleDiscovery)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth reports the bridge lifecycle state and bus connectivity.
//
// A Degraded bridge or a lost broker still answers 200 with status
// "degraded"; only a bridge that is shutting down answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.bridge.State()
	connected := s.bridge.BusConnected()

	status := "ok"
	code := http.StatusOK
	switch {
	case state == aircon.StateShuttingDown || state == aircon.StateStopped:
		status = "unavailable"
		code = http.StatusServiceUnavailable
	case state != aircon.StateReady || !connected:
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":        status,
		"state":         state.String(),
		"bus_connected": connected,
		"devices":       len(s.bridge.Devices()),
		"version":       s.version,
	})
}

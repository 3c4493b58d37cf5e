package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dispatchnav/internal/metrics"
)

// Routes builds the service mux wrapped in the middleware chain.
func (s *Server) Routes() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Planning
	mux.HandleFunc("/v1/plans", s.PlansHandler)
	mux.HandleFunc("/v1/plans/", s.PlanByIDHandler) // anchors, waypoints, geofences, submit, events/stream

	// Tasks and monitoring
	mux.HandleFunc("/v1/tasks", s.TasksHandler)
	mux.HandleFunc("/v1/tasks/", s.TaskByIDHandler) // monitor, geofences, cancel, events/stream, ws
	mux.HandleFunc("/v1/positions", s.PositionsHandler)
	mux.HandleFunc("/v1/ws", s.WSHandler)

	// Configuration
	mux.HandleFunc("/v1/config/geofence", s.GeofenceConfigHandler)
	mux.HandleFunc("/v1/config/restricted-areas", s.RestrictedAreasHandler)
	mux.HandleFunc("/v1/config/restricted-areas/", s.RestrictedAreasHandler)
	mux.HandleFunc("/v1/config/refresh", s.ConfigRefreshHandler)

	// Admin
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/sessions", s.SessionsHandler)
	mux.HandleFunc("/debug/info", s.DebugJSON)

	// Health, metrics, docs
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIHandler)
	mux.HandleFunc("/docs", s.DocsHandler)

	return s.requestID(s.observe(s.cors(s.rateLimit(mux))))
}

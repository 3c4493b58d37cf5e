package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadyHandler pings every configured backend (database, redis, fleet API).
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true
	for _, d := range s.deps {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := d.p.Ping(ctx)
		cancel()
		if err != nil {
			checks[d.name] = err.Error()
			ready = false
			continue
		}
		checks[d.name] = "ok"
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}

// Admin: notification deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := s.require(w, r, Principal.IsAdmin, "admin"); !ok {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Admin: open sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := s.require(w, r, Principal.IsAdmin, "admin"); !ok {
		return
	}
	planners, monitors := s.Sessions.Counts()
	writeJSON(w, http.StatusOK, map[string]int{"planners": planners, "monitors": monitors})
}

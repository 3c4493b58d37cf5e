package api

import (
	"net/http"
	"time"

	"dispatchnav/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, Principal.IsAdmin, "admin"); !ok {
		return
	}
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                 c.Port,
			"AUTH_MODE":            s.Auth.Mode(),
			"ALLOW_ORIGINS":        c.HTTP.AllowOrigins,
			"RATE_RPS":             c.HTTP.RateRPS,
			"ROUTING_PROVIDER":     c.Routing.Provider,
			"POSITION_POLL":        c.Poll.Positions.String(),
			"STATUS_POLL":          c.Poll.Status.String(),
			"WEBHOOK_MAX_ATTEMPTS": c.WebhookMaxAttempts,
			"HAS_DATABASE_URL":     c.DatabaseURL != "",
			"HAS_REDIS_URL":        c.RedisURL != "",
			"HAS_FLEET_API_URL":    c.FleetAPIURL != "",
			"HAS_MAPBOX_TOKEN":     c.Routing.Token != "",
		},
	})
}

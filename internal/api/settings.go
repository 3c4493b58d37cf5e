package api

import (
	"context"
	"net/http"

	"dispatchnav/internal/model"
)

type configView struct {
	Config   model.GeofenceConfig `json:"config"`
	Degraded string               `json:"degraded,omitempty"`
	// ReadOnly is set when the configuration lives in the fleet API.
	ReadOnly bool `json:"readOnly"`
}

func (s *Server) currentConfig(ctx context.Context) configView {
	cfg, err := s.Sessions.GlobalConfig(ctx)
	v := configView{Config: cfg, ReadOnly: s.Settings == nil}
	if err != nil {
		v.Degraded = err.Error()
	}
	return v
}

// settingsWritable writes 501 when the configuration is owned elsewhere.
func (s *Server) settingsWritable(w http.ResponseWriter, r *http.Request) bool {
	if s.Settings == nil {
		writeProblem(w, http.StatusNotImplemented, "Configuration is managed by the fleet API", "", r.URL.Path)
		return false
	}
	return true
}

// GeofenceConfigHandler handles GET/PUT /v1/config/geofence
func (s *Server) GeofenceConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := s.require(w, r, nil, ""); !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.currentConfig(r.Context()))
	case http.MethodPut:
		if _, ok := s.require(w, r, Principal.IsAdmin, "admin"); !ok {
			return
		}
		if !s.settingsWritable(w, r) {
			return
		}
		var cfg model.GeofenceConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		if err := validateGeofenceConfig(cfg); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid configuration", err.Error(), r.URL.Path)
			return
		}
		if err := s.Settings.SaveGeofenceConfig(r.Context(), cfg); err != nil {
			writeError(w, r, "Save configuration failed", err)
			return
		}
		s.Sessions.RefreshConfig(r.Context())
		writeJSON(w, http.StatusOK, s.currentConfig(r.Context()))
	default:
		methodNotAllowed(w, r)
	}
}

// RestrictedAreasHandler handles POST /v1/config/restricted-areas and
// DELETE /v1/config/restricted-areas/{id}
func (s *Server) RestrictedAreasHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.require(w, r, Principal.IsAdmin, "admin"); !ok {
		return
	}
	if !s.settingsWritable(w, r) {
		return
	}
	parts := splitPath(r.URL.Path, "/v1/config/restricted-areas")
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var a model.RestrictedArea
		if !decodeJSON(w, r, &a) {
			return
		}
		if err := validateRestrictedArea(a); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid restricted area", err.Error(), r.URL.Path)
			return
		}
		created, err := s.Settings.CreateRestrictedArea(r.Context(), a)
		if err != nil {
			writeError(w, r, "Create restricted area failed", err)
			return
		}
		s.Sessions.RefreshConfig(r.Context())
		writeJSON(w, http.StatusCreated, created)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := s.Settings.DeleteRestrictedArea(r.Context(), parts[0]); err != nil {
			writeError(w, r, "Delete restricted area failed", err)
			return
		}
		s.Sessions.RefreshConfig(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r)
	}
}

// ConfigRefreshHandler handles POST /v1/config/refresh: every open session
// reloads the configuration, for when it was changed out of band.
func (s *Server) ConfigRefreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := s.require(w, r, Principal.CanOperate, "operator"); !ok {
		return
	}
	s.Sessions.RefreshConfig(r.Context())
	writeJSON(w, http.StatusOK, s.currentConfig(r.Context()))
}

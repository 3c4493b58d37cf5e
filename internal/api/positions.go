package api

import (
	"net/http"
	"time"

	"dispatchnav/internal/auth"
	"dispatchnav/internal/model"
)

// PositionsHandler handles POST /v1/positions: a driver (or a relay acting
// for drivers) reports a location. Monitors pick it up on their next tick.
func (s *Server) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	pr, ok := s.require(w, r, func(p Principal) bool {
		return p.IsAdmin() || p.Role == auth.RoleDriver
	}, "driver or admin")
	if !ok {
		return
	}
	if s.Positions == nil {
		writeProblem(w, http.StatusNotImplemented, "Positions are read from the fleet API", "", r.URL.Path)
		return
	}
	var p model.DriverPosition
	if !decodeJSON(w, r, &p) {
		return
	}
	if pr.Role == auth.RoleDriver {
		if p.DriverID == "" {
			p.DriverID = pr.DriverID
		}
		if p.DriverID != pr.DriverID {
			writeProblem(w, http.StatusForbidden, "Forbidden", "drivers may only report their own position", r.URL.Path)
			return
		}
	}
	if err := validatePosition(p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid position", err.Error(), r.URL.Path)
		return
	}
	now := time.Now().UTC()
	if p.At.IsZero() || p.At.After(now) {
		p.At = now
	}
	if err := s.Positions.Record(r.Context(), p); err != nil {
		writeError(w, r, "Record position failed", err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

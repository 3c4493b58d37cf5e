package api

import (
	"net/http"
	"strconv"
	"strings"

	"dispatchnav/internal/model"
	"dispatchnav/internal/session"
)

// splitPath returns the path segments after prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// waitRequested reports whether the caller asked for the route to settle
// before the response is written.
func waitRequested(r *http.Request) bool {
	v := r.URL.Query().Get("wait")
	return v != "" && v != "0" && v != "false"
}

func writePlan(w http.ResponseWriter, r *http.Request, status int, p *session.Planner) {
	if waitRequested(r) {
		p.Wait()
	}
	writeJSON(w, status, p.Snapshot())
}

// PlansHandler handles POST /v1/plans
func (s *Server) PlansHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}
	if _, ok := s.require(w, r, Principal.CanOperate, "operator"); !ok {
		return
	}
	p := s.Sessions.NewPlanner(r.Context())
	w.Header().Set("Location", "/v1/plans/"+p.ID)
	writeJSON(w, http.StatusCreated, p.Snapshot())
}

// PlanByIDHandler handles /v1/plans/{id} and its sub-resources.
func (s *Server) PlanByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/plans/")
	if len(parts) == 0 {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if _, ok := s.require(w, r, Principal.CanOperate, "operator"); !ok {
		return
	}
	p, ok := s.Sessions.Planner(parts[0])
	if !ok {
		writeProblem(w, http.StatusNotFound, "Plan not found", parts[0], r.URL.Path)
		return
	}
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			writePlan(w, r, http.StatusOK, p)
		case http.MethodDelete:
			s.Sessions.ClosePlanner(p.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, r)
		}
	case "origin", "destination":
		s.planAnchor(w, r, p, sub == "origin")
	case "edit-mode":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r)
			return
		}
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		p.SetEditMode(req.Enabled)
		writePlan(w, r, http.StatusOK, p)
	case "travel-req":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r)
			return
		}
		var tr model.TravelRequirements
		if !decodeJSON(w, r, &tr) {
			return
		}
		p.SetTravelReq(tr)
		writePlan(w, r, http.StatusOK, p)
	case "waypoints":
		s.planWaypoints(w, r, p, parts[2:])
	case "geofences":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		if waitRequested(r) {
			p.Wait()
		}
		writeGeoJSON(w, p.Geofences())
	case "refresh":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		p.RefreshConfig(r.Context())
		writePlan(w, r, http.StatusOK, p)
	case "submit":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		var in model.TaskInput
		if !decodeJSON(w, r, &in) {
			return
		}
		if err := validateTaskInput(in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid task", err.Error(), r.URL.Path)
			return
		}
		task, err := p.Submit(r.Context(), in)
		if err != nil {
			writeError(w, r, "Submit plan failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, task)
	case "events":
		if len(parts) < 3 || parts[2] != "stream" {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		s.streamSSE(w, r, p.Topic(), p.Snapshot())
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) planAnchor(w http.ResponseWriter, r *http.Request, p *session.Planner, origin bool) {
	switch r.Method {
	case http.MethodPut:
		var c model.Coordinate
		if !decodeJSON(w, r, &c) {
			return
		}
		if err := validateCoordinate(c); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid coordinate", err.Error(), r.URL.Path)
			return
		}
		if origin {
			p.SetOrigin(r.Context(), c)
		} else {
			p.SetDestination(r.Context(), c)
		}
	case http.MethodDelete:
		if origin {
			p.ClearOrigin(r.Context())
		} else {
			p.ClearDestination(r.Context())
		}
	default:
		methodNotAllowed(w, r)
		return
	}
	writePlan(w, r, http.StatusOK, p)
}

func (s *Server) planWaypoints(w http.ResponseWriter, r *http.Request, p *session.Planner, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		var click model.Coordinate
		if !decodeJSON(w, r, &click) {
			return
		}
		if err := validateCoordinate(click); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid coordinate", err.Error(), r.URL.Path)
			return
		}
		snapped, idx, err := p.InsertWaypoint(click)
		if err != nil {
			writeError(w, r, "Insert waypoint failed", err)
			return
		}
		if waitRequested(r) {
			p.Wait()
		}
		writeJSON(w, http.StatusCreated, map[string]any{"waypoint": snapped, "index": idx, "plan": p.Snapshot()})
		return
	}
	idx, err := strconv.Atoi(rest[0])
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid index", err.Error(), r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var c model.Coordinate
		if !decodeJSON(w, r, &c) {
			return
		}
		if err := validateCoordinate(c); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid coordinate", err.Error(), r.URL.Path)
			return
		}
		err = p.MoveWaypoint(idx, c)
	case http.MethodDelete:
		err = p.RemoveWaypoint(idx)
	default:
		methodNotAllowed(w, r)
		return
	}
	if err != nil {
		writeError(w, r, "Edit waypoint failed", err)
		return
	}
	writePlan(w, r, http.StatusOK, p)
}

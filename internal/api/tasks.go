package api

import (
	"errors"
	"net/http"
	"strconv"

	"dispatchnav/internal/auth"
	"dispatchnav/internal/model"
	"dispatchnav/internal/session"
)

// assigned reports whether a driver principal is on the task.
func assigned(pr Principal, t model.Task) bool {
	if pr.Role != auth.RoleDriver {
		return true
	}
	for _, d := range t.Drivers {
		if d != "" && d == pr.DriverID {
			return true
		}
	}
	return false
}

// TasksHandler handles GET /v1/tasks
func (s *Server) TasksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	pr, ok := s.require(w, r, nil, "")
	if !ok {
		return
	}
	q := r.URL.Query()
	status := q.Get("status")
	if status != "" {
		st, err := model.ParseTaskStatus(status)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid status", err.Error(), r.URL.Path)
			return
		}
		status = st.String()
	}
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Tasks.ListTasks(r.Context(), status, q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "List tasks failed", err)
		return
	}
	visible := make([]model.Task, 0, len(items))
	for _, t := range items {
		if assigned(pr, t) {
			visible = append(visible, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": visible, "nextCursor": next})
}

// TaskByIDHandler handles /v1/tasks/{id} and the monitor sub-resources.
func (s *Server) TaskByIDHandler(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/v1/tasks/")
	if len(parts) == 0 {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	pr, ok := s.require(w, r, nil, "")
	if !ok {
		return
	}
	id := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}
	if pr.Role == auth.RoleDriver {
		t, err := s.Tasks.GetTask(r.Context(), id)
		if err != nil {
			writeError(w, r, "Task not found", err)
			return
		}
		if !assigned(pr, t) {
			writeProblem(w, http.StatusForbidden, "Forbidden", "not assigned to task", r.URL.Path)
			return
		}
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		t, err := s.Tasks.GetTask(r.Context(), id)
		if err != nil {
			writeError(w, r, "Get task failed", err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case "monitor":
		s.taskMonitor(w, r, pr, id)
	case "geofences":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r)
			return
		}
		m, ok := s.monitorFor(w, r, id)
		if !ok {
			return
		}
		if waitRequested(r) {
			m.Wait()
		}
		writeGeoJSON(w, m.Geofences())
	case "cancel":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r)
			return
		}
		if !pr.CanOperate() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "operator required", r.URL.Path)
			return
		}
		m, created, err := s.Sessions.OpenMonitor(r.Context(), id)
		if err != nil {
			writeError(w, r, "Open monitor failed", err)
			return
		}
		err = s.cancelTask(w, r, m)
		// a monitor opened only for this cancel is released unless it still
		// has to re-send the write
		if created && !errors.Is(err, model.ErrStalePersistenceWrite) {
			s.Sessions.CloseMonitor(id)
		}
	case "events":
		if len(parts) < 3 || parts[2] != "stream" {
			writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
			return
		}
		var initial any
		if m, ok := s.Sessions.Monitor(id); ok {
			initial = m.Snapshot()
		}
		s.streamSSE(w, r, id, initial)
	case "ws":
		s.serveWS(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) monitorFor(w http.ResponseWriter, r *http.Request, id string) (*session.Monitor, bool) {
	m, ok := s.Sessions.Monitor(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Monitor not open", "POST /v1/tasks/"+id+"/monitor first", r.URL.Path)
		return nil, false
	}
	return m, true
}

func (s *Server) taskMonitor(w http.ResponseWriter, r *http.Request, pr Principal, id string) {
	switch r.Method {
	case http.MethodPost:
		if !pr.CanOperate() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "operator required", r.URL.Path)
			return
		}
		m, created, err := s.Sessions.OpenMonitor(r.Context(), id)
		if err != nil {
			writeError(w, r, "Open monitor failed", err)
			return
		}
		if waitRequested(r) {
			m.Wait()
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, m.Snapshot())
	case http.MethodGet:
		m, ok := s.monitorFor(w, r, id)
		if !ok {
			return
		}
		if waitRequested(r) {
			m.Wait()
		}
		writeJSON(w, http.StatusOK, m.Snapshot())
	case http.MethodDelete:
		if !pr.CanOperate() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "operator required", r.URL.Path)
			return
		}
		if !s.Sessions.CloseMonitor(id) {
			writeProblem(w, http.StatusNotFound, "Monitor not open", id, r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r)
	}
}

// cancelTask answers 200 when the cancel was persisted and 202 when the
// status changed locally but the write is still outstanding. It returns the
// cancel error.
func (s *Server) cancelTask(w http.ResponseWriter, r *http.Request, m *session.Monitor) error {
	tr, err := m.Cancel(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"transition": tr, "monitor": m.Snapshot()})
	case errors.Is(err, model.ErrStalePersistenceWrite):
		writeJSON(w, http.StatusAccepted, map[string]any{"transition": tr, "monitor": m.Snapshot(), "warning": err.Error()})
	default:
		writeError(w, r, "Cancel task failed", err)
	}
	return err
}

// Package api implements the HTTP surface of the dispatch navigation service.
package api

import (
	"net/http"
	"strings"

	"dispatchnav/internal/auth"
)

type Principal struct {
	Role     string // admin, operator, driver, viewer
	DriverID string
}

// getPrincipal resolves the caller. A bearer token is checked with the
// configured verifier; without one the X-Role and X-Driver-Id headers are
// trusted, which is meant for development.
func (s *Server) getPrincipal(r *http.Request) (Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			return Principal{}, false
		}
		return Principal{Role: pr.Role, DriverID: pr.DriverID}, true
	}
	if s.Auth != nil && s.Auth.Mode() != "dev" {
		return Principal{Role: auth.RoleViewer}, true
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = auth.RoleAdmin
	}
	return Principal{Role: role, DriverID: r.Header.Get("X-Driver-Id")}, true
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == auth.RoleAdmin }

// CanOperate reports whether the principal may change task state.
func (p Principal) CanOperate() bool { return p.IsAdmin() || p.Role == auth.RoleOperator }

// require resolves the principal and writes 401/403 when allowed rejects it.
func (s *Server) require(w http.ResponseWriter, r *http.Request, allowed func(Principal) bool, what string) (Principal, bool) {
	pr, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "invalid bearer token", r.URL.Path)
		return pr, false
	}
	if allowed != nil && !allowed(pr) {
		writeProblem(w, http.StatusForbidden, "Forbidden", what+" required", r.URL.Path)
		return pr, false
	}
	return pr, true
}

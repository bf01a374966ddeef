package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

func (s *Server) mountRoutes() {
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/auth/logout", s.handleLogout)
	s.mux.Handle("POST /api/auth/change-password", s.requireSession(http.HandlerFunc(s.handleChangePassword)))
	s.mux.Handle("GET /api/me", s.requireSession(http.HandlerFunc(s.handleMe)))
	s.mux.Handle("GET /api/admin/audit", s.requireSession(requireRole(models.RoleAdmin, http.HandlerFunc(s.handleAudit))))
	s.mux.HandleFunc("GET /healthz", handleHealth)
}

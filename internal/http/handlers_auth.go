package http

import (
	"net/http"
	"strings"

	"daybook/internal/core"
	"daybook/internal/log"
)

type loginRequest struct {
	Page     string `json:"page"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	Page     string    `json:"page"`
	Password string    `json:"password"`
	Role     core.Role `json:"role"`
}

type userResponse struct {
	Page string    `json:"page"`
	Role core.Role `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Page == "" {
		req.Page = core.PageReport
	}

	role, err := s.auth.Verify(r.Context(), req.Page, req.Password)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Login failed",
			log.FieldPage, req.Page,
			log.FieldClientIP, r.RemoteAddr)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userResponse{Page: req.Page, Role: role},
	})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Page == "" {
		req.Page = core.PageReport
	}
	if strings.TrimSpace(req.Password) == "" {
		writeError(w, http.StatusBadRequest, "password must not be empty")
		return
	}
	if req.Role != core.RoleAdmin && req.Role != core.RoleUser {
		writeError(w, http.StatusBadRequest, "role must be admin or user")
		return
	}

	cred, err := s.auth.ChangePassword(r.Context(), req.Page, req.Password, req.Role)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "Password changed",
		log.FieldPage, cred.Page,
		log.FieldRole, cred.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userResponse{Page: cred.Page, Role: cred.Role},
	})
}

package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"daybook/internal/core"
	"daybook/internal/log"
)

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	var rep core.Report
	if err := decodeBody(r, &rep); err != nil {
		writeServiceError(w, err)
		return
	}

	// Non-admin callers submit as themselves, whatever the payload says.
	if ident.Role != core.RoleAdmin || strings.TrimSpace(rep.Username) == "" {
		rep.Username = ident.Username
	}

	created, err := s.reports.Create(r.Context(), rep)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Report create rejected",
			log.FieldUsername, rep.Username,
			log.FieldError, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"reportId": created.ID,
	})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	reports, err := s.reports.List(r.Context(), ident.Role, ident.Username)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Report list failed", log.FieldError, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	existing, err := s.reports.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ident.Role != core.RoleAdmin && existing.Username != ident.Username {
		writeError(w, http.StatusForbidden, "not your report")
		return
	}

	var payload core.Report
	if err := decodeBody(r, &payload); err != nil {
		writeServiceError(w, err)
		return
	}

	updated, err := s.reports.Update(r.Context(), id, payload, ident.Username)
	if err != nil {
		s.logger.WarnContext(r.Context(), "Report update rejected",
			log.FieldReportID, id,
			log.FieldError, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    updated,
	})
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	existing, err := s.reports.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ident.Role != core.RoleAdmin && existing.Username != ident.Username {
		writeError(w, http.StatusForbidden, "not your report")
		return
	}

	if err := s.reports.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleCheckDuplicate answers the pre-submission gate. A storage error is a
// 500; the gate never reports "no duplicate" on uncertainty.
func (s *Server) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	date := r.URL.Query().Get("date")
	username := r.URL.Query().Get("username")

	// Non-admin callers can only ask about themselves.
	if ident.Role != core.RoleAdmin {
		username = ident.Username
	}

	isDuplicate, err := s.reports.CheckDuplicate(r.Context(), date, username)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Duplicate check failed",
			log.FieldReportDate, date,
			log.FieldError, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"isDuplicate": isDuplicate})
}

type overrideRequest struct {
	Username string `json:"username"`
	Date     string `json:"date"`
}

func (s *Server) handleGrantOverride(w http.ResponseWriter, r *http.Request) {
	ident, _ := IdentityFromContext(r.Context())

	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := s.reports.GrantOverride(r.Context(), req.Username, req.Date, ident.Username); err != nil {
		writeServiceError(w, err)
		return
	}

	s.logger.InfoContext(r.Context(), "Override granted",
		log.FieldUsername, req.Username,
		log.FieldReportDate, req.Date)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"daybook/internal/auth"
	"daybook/internal/core"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message; the details stay in the logs.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, core.ErrDuplicateReport):
		writeError(w, http.StatusConflict, core.ErrDuplicateReport.Error())
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, core.ErrNotFound.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
	case errors.Is(err, auth.ErrUnknownPage):
		writeError(w, http.StatusNotFound, auth.ErrUnknownPage.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Reason: "malformed JSON"}
	}
	return nil
}

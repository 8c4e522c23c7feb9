// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/support-agent/internal/agent"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/internal/service"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, &model.ErrorBody{Error: message})
}

// writeServiceError maps domain errors to status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		status = http.StatusInternalServerError
		body   = model.ErrorBody{Error: "internal error"}
	)

	switch {
	case errors.Is(err, model.ErrAuthTrustViolation):
		status, body = http.StatusUnauthorized, model.ErrorBody{Error: "untrusted tenant or thread", Code: "auth_trust_violation"}
	case errors.Is(err, agent.ErrInvalidUtterance),
		errors.Is(err, agent.ErrEmptyAnswer),
		errors.Is(err, service.ErrInvalidRequest):
		status, body = http.StatusBadRequest, model.ErrorBody{Error: err.Error(), Code: "invalid_request"}
	case errors.Is(err, model.ErrConcurrentResumeConflict):
		w.Header().Set("Retry-After", "1")
		status, body = http.StatusConflict, model.ErrorBody{Error: "thread is busy, retry shortly", Code: "concurrent_run"}
	case errors.Is(err, model.ErrInvalidResumeState):
		status, body = http.StatusConflict, model.ErrorBody{Error: "thread is not awaiting resolution", Code: "invalid_resume_state"}
	case errors.Is(err, model.ErrNotFound):
		status, body = http.StatusNotFound, model.ErrorBody{Error: "not found", Code: "not_found"}
	}

	writeJSON(w, status, &body)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/store"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and the human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeInvalidRequest = "invalid_request"
	errCodeNotFound       = "not_found"
	errCodeSessionBusy    = "session_busy"
	errCodeInternal       = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeDomainError maps engine and store failures to their HTTP shape.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, errCodeNotFound, err.Error())
	case errors.Is(err, store.ErrSessionBusy):
		writeError(w, http.StatusConflict, errCodeSessionBusy, err.Error())
	case errors.Is(err, engine.ErrEmptyInput), errors.Is(err, engine.ErrNothingToUndo):
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
	case errors.Is(err, engine.ErrNotRunning):
		writeError(w, http.StatusBadRequest, errCodeInvalidRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, errCodeInternal, err.Error())
	}
}

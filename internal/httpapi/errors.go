package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/radiocap/internal/capability"
	"github.com/roach88/radiocap/internal/loop"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

// writeManagerError maps capability error codes to HTTP statuses.
func writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case capability.IsUnknownSlot(err):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case capability.IsInvalidRequest(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeLoopError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, loop.ErrStopped):
		writeJSONError(w, http.StatusServiceUnavailable, "device loop stopped")
	case errors.Is(err, context.DeadlineExceeded):
		writeJSONError(w, http.StatusGatewayTimeout, "device loop busy")
	default:
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/azoula-gateway/internal/gateway"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnsupported = "unsupported"
	ErrCodeTimeout     = "gateway_timeout"
	ErrCodeUnavailable = "gateway_unavailable"
	ErrCodeRejected    = "gateway_rejected"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeGatewayError maps gateway errors to HTTP statuses.
func writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrDeviceNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, gateway.ErrUnsupported):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
	case errors.Is(err, gateway.ErrRequestTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, gateway.ErrNotConnected), errors.Is(err, gateway.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, gateway.ErrServiceInvocationFailed), errors.Is(err, gateway.ErrRequestRejected):
		writeError(w, http.StatusBadGateway, ErrCodeRejected, err.Error())
	case errors.Is(err, gateway.ErrDiscoverySuperseded), errors.Is(err, gateway.ErrWaiterSuperseded):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

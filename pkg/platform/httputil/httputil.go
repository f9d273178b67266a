// Package httputil writes JSON responses for the operator HTTP surface.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"gatekeeper/pkg/platform/sentinel"
)

// ErrBadRequest marks caller mistakes such as malformed path parameters.
var ErrBadRequest = errors.New("bad request")

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status and a stable error code. Descriptions of
// internal failures are never returned to the caller.
func WriteError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = err.Error()
	}
	WriteJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, sentinel.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, sentinel.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, sentinel.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const maxRequestBody = 64 << 10

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "status", status, "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Message: msg})
}

// decodeJSON reads exactly one JSON object into dst. On failure it has
// already written the error reply.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("trailing data after JSON object")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, io.EOF):
		respondError(w, http.StatusBadRequest, "request body required")
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		respondError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), "json: "))
	default:
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
	}
	return false
}

// param trims a path or body value; blank counts as absent.
func param(s string) string { return strings.TrimSpace(s) }

// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fuelsync/fuelsync/internal/auth"
	"github.com/fuelsync/fuelsync/internal/handler/dto"
	"github.com/fuelsync/fuelsync/internal/service"
)

// Handler serves the owner-scoped API.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates a new Handler instance.
func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With("component", "handler"),
	}
}

// NotFound handles 404 responses.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// handleServiceError maps service errors onto HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, "VEHICLE_NOT_FOUND", "vehicle not found")
	case errors.Is(err, service.ErrRefillNotFound):
		writeError(w, http.StatusNotFound, "REFILL_NOT_FOUND", "refill not found")
	case errors.Is(err, service.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, "EXPENSE_NOT_FOUND", "expense not found")
	case errors.Is(err, service.ErrMalformedCursor):
		writeError(w, http.StatusBadRequest, "MALFORMED_CURSOR", "malformed nextToken")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		h.logger.ErrorContext(r.Context(), "upstream_unavailable", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "a backing service is unavailable, retry later")
	default:
		h.logger.ErrorContext(r.Context(), "internal_error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}

// decode reads a JSON body into v. It writes the error response itself and
// reports whether the handler should continue.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
	case errors.Is(err, io.EOF):
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "request body is required")
	default:
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
	}
	return false
}

// listParams reads the nextToken and limit query parameters.
// A non-numeric limit is treated as absent.
func listParams(r *http.Request) (string, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	return q.Get("nextToken"), limit
}

func identity(r *http.Request) *auth.Identity {
	return auth.MustIdentityFromContext(r.Context())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

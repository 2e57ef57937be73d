// Package response writes session API responses: JSON bodies for snapshots
// and RFC 7807 problems for failures.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mockcarpool/carpool/internal/api/middleware"
	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/session"
)

// sessionRetryAfter is the Retry-After hint, in seconds, sent when the
// session limit is reached. Idle sessions expire on the janitor's sweep.
const sessionRetryAfter = 30

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, status, "", data)
}

// Created writes a 201 pointing at the new session.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusCreated, location, data)
}

// Accepted writes a 202 for a route request whose result arrives as a later
// snapshot.
func Accepted(w http.ResponseWriter, r *http.Request, location string, data any) {
	write(w, r, http.StatusAccepted, location, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	write(w, r, http.StatusNoContent, "", nil)
}

func write(w http.ResponseWriter, r *http.Request, status int, location string, data any) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	if location != "" {
		w.Header().Set("Location", location)
	}
	if data == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// Conflict writes a 409.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewConflict(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503. A positive retryAfter sets Retry-After in seconds.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// SessionError writes the problem for an error returned by the session
// manager or a session command and returns the status written. It writes
// nothing and returns 0 when the request context was cancelled.
func SessionError(w http.ResponseWriter, r *http.Request, err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		NotFound(w, r, "session not found")
		return http.StatusNotFound
	case errors.Is(err, session.ErrUnknownField):
		BadRequest(w, r, "unknown field", nil)
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidSuggestion):
		Conflict(w, r, "no suggestion is shown at that index")
		return http.StatusConflict
	case errors.Is(err, session.ErrTooManySessions):
		ServiceUnavailable(w, r, "session limit reached, try again later", sessionRetryAfter)
		return http.StatusServiceUnavailable
	default:
		InternalError(w, r, "session command failed")
		return http.StatusInternalServerError
	}
}

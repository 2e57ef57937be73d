package response_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockcarpool/carpool/internal/api/middleware"
	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/api/response"
	"github.com/mockcarpool/carpool/internal/session"
)

// withRequestID returns a request whose context carries an ID assigned by the
// RequestID middleware.
func withRequestID(t *testing.T, method, path string) *http.Request {
	t.Helper()
	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, http.NoBody))
	require.NotNil(t, processed)
	return processed
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestJSON_WritesSnapshotWithRequestID(t *testing.T) {
	req := withRequestID(t, http.MethodGet, "/v1/sessions/abc")
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, &session.Snapshot{Version: 7, Phase: session.PhaseIdle})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, middleware.GetRequestID(req.Context()), rec.Header().Get("X-Request-Id"))

	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, uint64(7), snap.Version)
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()

	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody), http.StatusOK, map[string]string{"status": "ok"})

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreatedAndAccepted_SetLocation(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request, string, any)
		status int
	}{
		{"created", response.Created, http.StatusCreated},
		{"accepted", response.Accepted, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withRequestID(t, http.MethodPost, "/v1/sessions")
			rec := httptest.NewRecorder()

			tt.write(rec, req, "/v1/sessions/abc", map[string]string{"sessionId": "abc"})

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "/v1/sessions/abc", rec.Header().Get("Location"))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}
}

func TestNoContent_HasNoBody(t *testing.T) {
	req := withRequestID(t, http.MethodDelete, "/v1/sessions/abc")
	rec := httptest.NewRecorder()

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBadRequest_CarriesFieldErrors(t *testing.T) {
	req := withRequestID(t, http.MethodPut, "/v1/sessions/abc/fields/start")
	rec := httptest.NewRecorder()

	response.BadRequest(rec, req, "text is required", []models.FieldError{{Field: "text", Message: "required"}})

	p := decodeProblem(t, rec)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "/v1/sessions/abc/fields/start", p.Instance)
	assert.Equal(t, middleware.GetRequestID(req.Context()), p.TraceID)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "text", p.Errors[0].Field)
}

func TestServiceUnavailable_RetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	response.ServiceUnavailable(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody), "not ready", 0)
	assert.Empty(t, rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	response.ServiceUnavailable(rec, httptest.NewRequest(http.MethodPost, "/v1/sessions", http.NoBody), "full", 30)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusServiceUnavailable, decodeProblem(t, rec).Status)
}

func TestSessionError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found", session.ErrSessionNotFound, http.StatusNotFound, "session not found"},
		{"closed", fmt.Errorf("set text: %w", session.ErrSessionClosed), http.StatusNotFound, "session not found"},
		{"unknown field", session.ErrUnknownField, http.StatusBadRequest, "unknown field"},
		{"no such suggestion", session.ErrInvalidSuggestion, http.StatusConflict, "no suggestion is shown at that index"},
		{"session limit", session.ErrTooManySessions, http.StatusServiceUnavailable, "session limit reached, try again later"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "session command failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withRequestID(t, http.MethodPost, "/v1/sessions/abc/route")
			rec := httptest.NewRecorder()

			status := response.SessionError(rec, req, tt.err)

			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.detail, p.Detail)
			assert.Equal(t, "/v1/sessions/abc/route", p.Instance)
		})
	}
}

func TestSessionError_CancelledWritesNothing(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", http.NoBody)

	status := response.SessionError(rec, req, fmt.Errorf("dispatch: %w", context.Canceled))

	assert.Zero(t, status)
	assert.Empty(t, rec.Body.String())
	assert.False(t, rec.Flushed)
	assert.Empty(t, rec.Header())
}

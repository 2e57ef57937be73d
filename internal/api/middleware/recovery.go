package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/api/models"
)

// Recovery turns a handler panic into a 500 problem. A panic after the
// response has started, such as in the middle of an event stream, is logged
// and the connection is dropped instead.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := newStatusWriter(w)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("session_id", chi.URLParam(r, SessionParam)).
					Str("route", routePattern(r)).
					Bool("response_started", wrapped.started).
					Interface("error", rec).
					Str("stack", string(debug.Stack())).
					Msg("panic recovered")

				if wrapped.started {
					panic(http.ErrAbortHandler)
				}
				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(wrapped)
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

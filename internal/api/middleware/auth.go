package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/auth"
)

// sessionIDKey is the context key for the authorized session ID.
type sessionIDKey struct{}

// SessionParam is the chi URL parameter holding the session ID.
const SessionParam = "sessionID"

// SessionAuth creates middleware that requires a bearer token issued for the
// session named by the {sessionID} path parameter.
func SessionAuth(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, detail := bearerToken(r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			sessionID := chi.URLParam(r, SessionParam)
			if _, err := tokens.Authorize(token, sessionID); err != nil {
				switch {
				case errors.Is(err, auth.ErrSessionMismatch):
					writeForbidden(w, r, "token does not grant access to this session")
				case errors.Is(err, auth.ErrTokenExpired):
					writeUnauthorized(w, r, "session token has expired")
				case errors.Is(err, auth.ErrInvalidToken):
					writeUnauthorized(w, r, "invalid session token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), sessionIDKey{}, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the bearer token, or returns a detail message describing
// why the Authorization header is unusable.
func bearerToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	token := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized writes a 401 Unauthorized response.
// This is implemented directly here to avoid import cycle with response package.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewUnauthorized(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

func writeForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	problem := models.NewForbidden(GetRequestID(r.Context()), detail)
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// GetSessionID retrieves the authorized session ID from the context.
// Returns an empty string if the request was not authorized.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey{}).(string); ok {
		return id
	}
	return ""
}

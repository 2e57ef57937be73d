package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns middleware that lets browser clients on origins drive sessions.
// No origins disables cross-origin access; rs/cors would otherwise allow all.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"Last-Event-ID",
			"X-Request-Id",
		},
		ExposedHeaders: []string{
			"Location",
			"Retry-After",
			"X-Request-Id",
		},
		MaxAge: 300,
	})
	return c.Handler
}

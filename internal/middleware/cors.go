// Package middleware provides HTTP middleware for the sommelier API.
package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS returns middleware that handles CORS headers. Credentials are only
// allowed when every origin is listed explicitly.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	})
}

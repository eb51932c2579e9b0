package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the storefront origin policy. The guest session header is
// exposed so browsers can persist a server-generated session id, and ETag so
// they can send If-Match on cart writes.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, "If-Match", GuestSessionHeader, "X-Requested-With"},
		ExposedHeaders:   []string{GuestSessionHeader, requestIDHeader, ReplayedHeader, "ETag"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

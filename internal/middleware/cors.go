package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// anyOrigin is used when no origins are configured.
var anyOrigin = []string{"https://*", "http://*"}

// CORS allows browser clients from origins to call the API and read the
// headers they need for retries and correlation. Credentials are only
// allowed for an explicit origin list.
func CORS(origins []string) func(http.Handler) http.Handler {
	explicit := len(origins) > 0
	if !explicit {
		origins = anyOrigin
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", "X-Correlation-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "Retry-After"},
		AllowCredentials: explicit,
		MaxAge:           300,
	})
}

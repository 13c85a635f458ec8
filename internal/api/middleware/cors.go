package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

func CORS(allowedOrigins []string, apiKeyHeader string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	headers := []string{"Accept", "Authorization", "Content-Type"}
	if apiKeyHeader != "" {
		headers = append(headers, apiKeyHeader)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-ID", "X-Provider-ID"},
		MaxAge:         3600,
	})
}

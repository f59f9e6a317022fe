package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/promptfmt/internal/config"
)

// CORS applies the configured cross-origin policy. Browser MCP clients read
// Mcp-Session-Id from responses, so it must be listed in ExposedHeaders.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	policy := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return policy.Handler
}

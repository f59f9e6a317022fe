package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davidbz/promptfmt/internal/config"
	"github.com/davidbz/promptfmt/internal/http/middleware"
	"github.com/davidbz/promptfmt/internal/observability"
)

// MCPPath is where the streamable MCP endpoint is mounted.
const MCPPath = "/mcp"

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	handler     *Handler
	mcp         http.Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	mcpHandler http.Handler,
	middlewares middleware.Middleware,
) *Server {
	s := &Server{
		config:      *cfg,
		handler:     handler,
		mcp:         mcpHandler,
		middlewares: middlewares,
	}

	// Start and Shutdown share srv; it is never reassigned.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Routes(),
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	return s
}

// Routes returns the routed handler with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Register routes.
	mux.Handle(MCPPath, s.mcp)
	mux.HandleFunc("/health", s.handler.HandleHealth)
	mux.HandleFunc("/health/upstream", s.handler.HandleUpstreamHealth)

	// Apply middleware chain.
	return s.middlewares(mux)
}

// Start serves until Shutdown is called. A Shutdown that arrives first makes
// Start return immediately.
func (s *Server) Start() error {
	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server",
		observability.Int("port", s.config.Port),
		observability.String("mcp_path", MCPPath))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

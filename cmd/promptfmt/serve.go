package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/domain"
	httpapi "github.com/davidbz/promptfmt/internal/http"
	"github.com/davidbz/promptfmt/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// serveCmd runs the MCP server over stdio.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Start an MCP server on stdin/stdout, exposing the prompt tools:
  - format-prompt:        Rewrite a prompt in a given style
  - optimize-prompt:      Make a prompt clearer and more actionable
  - analyze-prompt:       Critique a prompt
  - check-connection:     Probe the completion endpoint
  - confirm-and-continue: Confirm the final prompt`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := buildContainer()
		if err != nil {
			return err
		}

		return container.Invoke(func(server *mcp.Server, service *domain.PromptService, logger *zap.Logger) error {
			defer closeService(service, logger)

			logger.Info("starting MCP server on stdio", zap.String("version", Version))
			if runErr := server.Run(cmd.Context(), &mcp.StdioTransport{}); runErr != nil &&
				!errors.Is(runErr, context.Canceled) {
				return fmt.Errorf("MCP server failed: %w", runErr)
			}
			return nil
		})
	},
}

// serveHTTPCmd runs the MCP server over streamable HTTP.
var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Run the MCP server over streamable HTTP",
	Long: `Start an HTTP server exposing the prompt tools at /mcp (streamable HTTP
transport), plus /health and /health/upstream. Listens on SERVER_PORT.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		container, err := buildContainer()
		if err != nil {
			return err
		}

		return container.Invoke(func(server *httpapi.Server, service *domain.PromptService, logger *zap.Logger) error {
			defer closeService(service, logger)

			return runHTTP(cmd.Context(), server)
		})
	},
}

// runHTTP serves until ctx is done, then shuts down gracefully.
func runHTTP(ctx context.Context, server *httpapi.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// closeService releases the service's cache connections on exit.
func closeService(service *domain.PromptService, logger *zap.Logger) {
	if err := service.Close(); err != nil {
		logger.Warn("failed to close result cache", observability.Error(err))
	}
}

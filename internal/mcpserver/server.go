// Package mcpserver exposes the prompt tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/davidbz/promptfmt/internal/domain"
)

// ServerName identifies this server to MCP clients.
const ServerName = "prompt-format-mcp"

// PromptService is the domain surface the tools call into.
type PromptService interface {
	FormatPrompt(ctx context.Context, content string, style domain.FormatStyle) (string, error)
	OptimizePrompt(ctx context.Context, content string) (string, error)
	AnalyzePrompt(ctx context.Context, content string) (string, error)
	CheckConnection(ctx context.Context) bool
}

// New creates an MCP server with the prompt tools registered.
func New(version string, service PromptService, logger *zap.Logger) *mcp.Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Title:   "Prompt Format",
		Version: version,
	}, nil)

	registerTools(server, &toolset{service: service, logger: logger})
	return server
}

// Run creates an MCP server and runs it on the given transport.
// It blocks until the client disconnects or the context is cancelled.
func Run(ctx context.Context, version string, service PromptService, logger *zap.Logger, transport mcp.Transport) error {
	server := New(version, service, logger)
	return server.Run(ctx, transport)
}

// NewHTTPHandler serves server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

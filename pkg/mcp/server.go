// Package mcp exposes the component registry to MCP clients over stdio.
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

const serverVersion = "0.1.0"

// Server implements the MCP server for compreg, exposing read-only registry
// query tools.
type Server struct {
	mcpServer *server.MCPServer
	source    DocumentSource
	logger    *slog.Logger
}

// NewServer creates a new MCP server backed by source. A nil logger uses
// slog.Default().
func NewServer(source DocumentSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{source: source, logger: logger}

	s.mcpServer = server.NewMCPServer(
		"compreg",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.loggingMiddleware()),
	)

	s.mcpServer.AddTools(
		server.ServerTool{Tool: listCategoriesTool(), Handler: s.handleListCategories},
		server.ServerTool{Tool: listComponentsTool(), Handler: s.handleListComponents},
		server.ServerTool{Tool: getComponentDetailsTool(), Handler: s.handleGetComponentDetails},
		server.ServerTool{Tool: registryStatusTool(), Handler: s.handleRegistryStatus},
	)

	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve runs the stdio transport on in/out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

package mcp

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hgovi/Basketball-RAG/pkg/mcp/tools"
	"github.com/hgovi/Basketball-RAG/pkg/middleware"
)

// Server wraps the mcp-go MCPServer and serves it over stdio.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
// Every tool call is logged through middleware.MCPToolLogger.
func NewServer(name, version string, logger *zap.Logger) *Server {
	logger = logger.Named("mcp")
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithToolHandlerMiddleware(middleware.MCPToolLogger(logger)),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger,
	}
}

// NewStatsServer creates a server with the statistics tools registered.
func NewStatsServer(name, version string, deps *tools.StatsToolDeps, logger *zap.Logger) *Server {
	s := NewServer(name, version, logger)
	tools.RegisterStatsTools(s.mcp, deps)
	tools.RegisterHealthTool(s.mcp, version, deps)
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// Serve reads JSON-RPC requests from in and writes responses to out until
// ctx is canceled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("Serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

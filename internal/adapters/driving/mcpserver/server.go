// Package mcpserver exposes the tool service over the Model Context Protocol.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

const (
	serverName = "d365-odata-mcp"

	serverInstructions = "Read-only access to a Dynamics 365 environment over OData. " +
		"Start with list_entities, inspect a table with get_entity_schema or get_metadata, " +
		"then fetch rows with query_entity or get_record."
)

// Server serves the registered tools to one MCP client.
type Server struct {
	mcpServer *mcp.Server
	tools     driving.ToolService
	logger    zerolog.Logger
}

// NewServer creates an MCP server exposing every tool of tools.
func NewServer(tools driving.ToolService, version string, logger zerolog.Logger) (*Server, error) {
	if tools == nil {
		return nil, errors.New("tool service not configured")
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcpServer: mcp.NewServer(
			&mcp.Implementation{Name: serverName, Version: version},
			&mcp.ServerOptions{Instructions: serverInstructions},
		),
		tools:  tools,
		logger: logger,
	}
	for _, spec := range tools.Tools() {
		s.mcpServer.AddTool(toolDefinition(spec), s.handler(spec.Name))
	}
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return errors.New("MCP server is not configured")
	}

	s.logger.Info().Int("tools", len(s.tools.Tools())).Msg("MCP server starting")
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	s.logger.Info().Msg("MCP server stopped")
	return nil
}

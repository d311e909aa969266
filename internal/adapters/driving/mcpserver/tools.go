package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/d365-mcp/internal/core/ports/driving"
)

// toolDefinition converts a tool spec into its MCP form.
func toolDefinition(spec driving.ToolSpec) *mcp.Tool {
	return &mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: inputSchema(spec.Params),
	}
}

// inputSchema builds the object schema for a tool's parameters. Integer and
// boolean parameters also accept strings because clients often send "10".
func inputSchema(params []driving.ToolParam) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(params)),
	}
	for _, p := range params {
		prop := &jsonschema.Schema{Description: p.Description}
		switch p.Type {
		case driving.ParamInteger:
			prop.Types = []string{"integer", "string"}
		case driving.ParamBoolean:
			prop.Types = []string{"boolean", "string"}
		default:
			prop.Type = "string"
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

func (s *Server) handler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := decodeArguments(req)
		if err != nil {
			return errorResult(err), nil
		}

		text, err := s.tools.Call(ctx, name, args)
		if err != nil {
			s.logger.Debug().Err(err).Str("tool", name).Msg("tool returned error")
			return errorResult(err), nil
		}
		return textResult(text), nil
	}
}

func decodeArguments(req *mcp.CallToolRequest) (map[string]any, error) {
	args := map[string]any{}
	if req == nil || req.Params == nil || len(req.Params.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

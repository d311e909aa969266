// Package driving defines the ports adapters use to drive the core.
package driving

import "context"

// Tool names exposed to tool-calling clients.
const (
	ToolListEntities       = "list_entities"
	ToolQueryEntity        = "query_entity"
	ToolGetEntitySchema    = "get_entity_schema"
	ToolGetRecord          = "get_record"
	ToolGetEnvironmentInfo = "get_environment_info"
	ToolGetMetadata        = "get_metadata"
	ToolRefreshMetadata    = "refresh_metadata"
)

// ToolService executes named operations against Dynamics 365 and renders the
// result as text for the caller.
type ToolService interface {
	// Call dispatches a tool by name. Arguments arrive as a loosely typed map
	// straight from the client; numbers and booleans may also arrive as strings.
	// A returned error is a tool-level failure meant to be shown to the caller.
	Call(ctx context.Context, name string, args map[string]any) (string, error)

	// Tools describes every operation Call accepts.
	Tools() []ToolSpec
}

// ParamType is the JSON type a tool parameter is documented as.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamBoolean ParamType = "boolean"
)

// ToolParam documents one tool argument.
type ToolParam struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool
}

// ToolSpec documents one tool.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

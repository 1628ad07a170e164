package agent

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/ownagent/ownagent/pkg/models"
)

// Tool is the contract every builtin and external tool implements.
// Schema returns the JSON Schema describing the argument object; Execute
// receives arguments that already passed repair and schema validation.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)
}

// ToolDefinition is the serialized catalogue entry shown to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition carries one tool's name, description, and parameter schema.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// MustSchemaFor reflects a JSON Schema from a tool args struct.
//
// Supported tags:
//   - json:"name" for the parameter name, ",omitempty" for optional shape
//   - jsonschema:"required" to mark a parameter required
//   - jsonschema:"description=..." for the parameter description
//   - jsonschema:"enum=a|b" and numeric bounds as the library defines them
func MustSchemaFor[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
		// Models pad argument objects with stray keys; tolerate them.
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")

	out, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return out
}

// ExternalFunc adapts a bare invoker (an MCP round-trip, typically) to a tool.
type ExternalFunc func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error)

type externalTool struct {
	name        string
	description string
	schema      json.RawMessage
	invoke      ExternalFunc
}

func (t *externalTool) Name() string            { return t.name }
func (t *externalTool) Description() string     { return t.description }
func (t *externalTool) Schema() json.RawMessage { return t.schema }

func (t *externalTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	return t.invoke(ctx, args)
}

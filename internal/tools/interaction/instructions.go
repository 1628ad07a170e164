package interaction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// taskInstructions holds the canned guides fetch_instructions can return.
var taskInstructions = map[string]string{
	"create_mcp_server": `
# Creating an MCP Server
1. Define the server capabilities.
2. Implement the protocol handlers.
3. Register tools and resources.
4. Test with an MCP client.
`,
	"create_mode": `
# Creating a Mode
1. Define the mode configuration.
2. Specify available tools.
3. Set up the prompt template.
4. Register the mode in the system.
`,
}

// FetchInstructionsArgs are the arguments for fetch_instructions.
type FetchInstructionsArgs struct {
	Task string `json:"task" jsonschema:"required,enum=create_mcp_server,enum=create_mode" jsonschema_description:"Task identifier to fetch instructions for"`
}

// FetchInstructionsTool returns the step-by-step guide for a predefined task.
type FetchInstructionsTool struct {
	tc *agent.ToolContext
}

// NewFetchInstructionsTool creates the fetch_instructions tool.
func NewFetchInstructionsTool(tc *agent.ToolContext) *FetchInstructionsTool {
	return &FetchInstructionsTool{tc: tc}
}

func (t *FetchInstructionsTool) Name() string { return "fetch_instructions" }

func (t *FetchInstructionsTool) Description() string {
	return "Fetch the instructions for a predefined task such as create_mcp_server or create_mode."
}

func (t *FetchInstructionsTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[FetchInstructionsArgs]()
}

func (t *FetchInstructionsTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in FetchInstructionsArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	content, ok := taskInstructions[in.Task]
	if !ok {
		return models.ToolSuccess("No instructions found."), nil
	}
	return models.ToolSuccess(content), nil
}

package files

import "github.com/ownagent/ownagent/internal/agent"

// Tools returns the filesystem tool set bound to one session's context, in
// catalogue order.
func Tools(tc *agent.ToolContext) []agent.Tool {
	return []agent.Tool{
		NewListTool(tc),
		NewReadTool(tc),
		NewWriteTool(tc),
		NewDeleteTool(tc),
		NewSearchTool(tc),
		NewEditTool(tc),
		NewApplyDiffTool(tc),
	}
}

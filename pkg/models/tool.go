package models

// Control actions a tool may attach to its result's Data map.
const (
	// ActionAskUser pauses the agent loop until the user answers.
	ActionAskUser = "ask_user"

	// ActionDisplayTodo asks the client to render the todo list.
	ActionDisplayTodo = "display_todo"
)

// ToolResult is the uniform envelope every tool hands back to the
// dispatcher. Failures stay in-band: Success=false with a readable Output
// becomes an ordinary tool message the model can react to on its next step.
type ToolResult struct {
	Success bool           `json:"success"`
	Output  string         `json:"output"`
	Data    map[string]any `json:"data,omitempty"`
}

// Action returns the control action carried in Data, or "" if none.
func (r *ToolResult) Action() string {
	if r == nil || r.Data == nil {
		return ""
	}
	action, _ := r.Data["action"].(string)
	return action
}

// ToolSuccess builds a successful result with the given output text.
func ToolSuccess(output string) *ToolResult {
	return &ToolResult{Success: true, Output: output}
}

// ToolError builds a failed result with the given output text.
func ToolError(output string) *ToolResult {
	return &ToolResult{Success: false, Output: output}
}

package interaction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// CompletionArgs are the arguments for attempt_completion.
type CompletionArgs struct {
	Result string `json:"result" jsonschema:"required" jsonschema_description:"Final result message to deliver to the user once the task is complete"`
}

// CompletionTool marks the task finished. The runtime ends the turn when it
// sees this tool succeed.
type CompletionTool struct {
	tc *agent.ToolContext
}

// NewCompletionTool creates the attempt_completion tool.
func NewCompletionTool(tc *agent.ToolContext) *CompletionTool {
	return &CompletionTool{tc: tc}
}

func (t *CompletionTool) Name() string { return "attempt_completion" }

func (t *CompletionTool) Description() string {
	return "Present the final result of the task to the user. Only call this after confirming previous tool calls succeeded; the result must stand on its own and not end with a question."
}

func (t *CompletionTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[CompletionArgs]()
}

func (t *CompletionTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in CompletionArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	return models.ToolSuccess("TASK COMPLETED: " + in.Result), nil
}

// TaskArgs are the arguments for new_task.
type TaskArgs struct {
	Mode    string `json:"mode" jsonschema:"required" jsonschema_description:"Slug of the mode to begin the new task in (e.g., code, debug, architect)"`
	Message string `json:"message" jsonschema:"required" jsonschema_description:"Initial user instructions or context for the new task"`
	Todos   string `json:"todos,omitempty" jsonschema_description:"Optional initial todo list written as a markdown checklist"`
}

// TaskTool starts a new task: it switches the mode and resets the todo tree
// from the optional checklist.
type TaskTool struct {
	tc *agent.ToolContext
}

// NewTaskTool creates the new_task tool.
func NewTaskTool(tc *agent.ToolContext) *TaskTool {
	return &TaskTool{tc: tc}
}

func (t *TaskTool) Name() string { return "new_task" }

func (t *TaskTool) Description() string {
	return "Start a new task in the given mode with fresh context and an optional initial todo checklist."
}

func (t *TaskTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[TaskArgs]()
}

func (t *TaskTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in TaskArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	t.tc.SetMode(in.Mode)
	t.tc.SetTodos(parseChecklist(in.Todos))
	return models.ToolSuccess(fmt.Sprintf("Started new task in mode '%s': %s", in.Mode, in.Message)), nil
}

// SwitchModeArgs are the arguments for switch_mode.
type SwitchModeArgs struct {
	ModeSlug string `json:"mode_slug" jsonschema:"required" jsonschema_description:"Slug of the mode to switch to (e.g., code, ask, architect)"`
	Reason   string `json:"reason" jsonschema:"required" jsonschema_description:"Explanation for why the mode switch is needed"`
}

// SwitchModeTool changes the session's active mode.
type SwitchModeTool struct {
	tc *agent.ToolContext
}

// NewSwitchModeTool creates the switch_mode tool.
func NewSwitchModeTool(tc *agent.ToolContext) *SwitchModeTool {
	return &SwitchModeTool{tc: tc}
}

func (t *SwitchModeTool) Name() string { return "switch_mode" }

func (t *SwitchModeTool) Description() string {
	return "Switch to a different mode (architect, code, ask, debug, orchestrator) with a reason."
}

func (t *SwitchModeTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[SwitchModeArgs]()
}

func (t *SwitchModeTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in SwitchModeArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	old := t.tc.SetMode(in.ModeSlug)
	return models.ToolSuccess(fmt.Sprintf("Switched mode from '%s' to '%s'. Reason: %s", old, in.ModeSlug, in.Reason)), nil
}

// UpdateTodoListArgs are the arguments for update_todo_list.
type UpdateTodoListArgs struct {
	Todos string `json:"todos" jsonschema:"required" jsonschema_description:"Full markdown checklist in execution order, using [ ] for pending, [x] for completed, and [-] for in progress"`
}

// UpdateTodoListTool replaces the todo tree from a flat markdown checklist.
type UpdateTodoListTool struct {
	tc *agent.ToolContext
}

// NewUpdateTodoListTool creates the update_todo_list tool.
func NewUpdateTodoListTool(tc *agent.ToolContext) *UpdateTodoListTool {
	return &UpdateTodoListTool{tc: tc}
}

func (t *UpdateTodoListTool) Name() string { return "update_todo_list" }

func (t *UpdateTodoListTool) Description() string {
	return "Replace the todo list with an updated markdown checklist covering the whole task."
}

func (t *UpdateTodoListTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[UpdateTodoListArgs]()
}

func (t *UpdateTodoListTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in UpdateTodoListArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	t.tc.SetTodos(parseChecklist(in.Todos))
	return models.ToolSuccess("TODO list updated."), nil
}

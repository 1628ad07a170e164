// Package todo provides the plan-tracking tools. The todo tree lives on the
// session's ToolContext; write_todo replaces it wholesale, update_todo flips
// one item's status, and read_todo returns the raw JSON.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// Tools returns the todo tool set bound to one session's context.
func Tools(tc *agent.ToolContext) []agent.Tool {
	return []agent.Tool{
		NewReadTool(tc),
		NewWriteTool(tc),
		NewUpdateTool(tc),
	}
}

// statusMarker maps a todo status to its checklist marker.
func statusMarker(status models.TodoStatus) string {
	switch status {
	case models.TodoInProgress:
		return "[-]"
	case models.TodoCompleted:
		return "[x]"
	case models.TodoFailed:
		return "[!]"
	case models.TodoSkipped:
		return "[?]"
	default:
		return "[ ]"
	}
}

// renderPlan renders the status lines under a header. Top-level items and
// their direct subtasks are shown; deeper nesting is tracked in state but
// not rendered.
func renderPlan(header string, todos []*models.TodoItem) string {
	lines := []string{header}
	for _, item := range todos {
		lines = append(lines, formatItem(item, 0))
		for _, sub := range item.Subtasks {
			lines = append(lines, formatItem(sub, 1))
		}
	}
	return strings.Join(lines, "\n")
}

func formatItem(item *models.TodoItem, indent int) string {
	return fmt.Sprintf("%s%s %s (ID: %s)", strings.Repeat("  ", indent), statusMarker(item.Status), item.Title, item.ID)
}

func displayData(todos []*models.TodoItem) map[string]any {
	return map[string]any{
		"action": models.ActionDisplayTodo,
		"todos":  todos,
	}
}

// ReadTodoArgs are the arguments for read_todo. It takes none.
type ReadTodoArgs struct{}

// ReadTool returns the current todo tree as JSON.
type ReadTool struct {
	tc *agent.ToolContext
}

// NewReadTool creates the read_todo tool.
func NewReadTool(tc *agent.ToolContext) *ReadTool {
	return &ReadTool{tc: tc}
}

func (t *ReadTool) Name() string { return "read_todo" }

func (t *ReadTool) Description() string {
	return "Read the current structured todo list as JSON."
}

func (t *ReadTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ReadTodoArgs]()
}

func (t *ReadTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	todos := t.tc.Todos()
	if todos == nil {
		todos = []*models.TodoItem{}
	}
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return models.ToolError(fmt.Sprintf("Failed to read todo list: %v", err)), nil
	}
	return &models.ToolResult{
		Success: true,
		Output:  string(data),
		Data:    map[string]any{"todos": todos},
	}, nil
}

// WriteTodoArgs are the arguments for write_todo. The item shape is kept
// loose in the schema; decoding enforces id/title/status/subtasks.
type WriteTodoArgs struct {
	Todos []*models.TodoItem `json:"todos"`
}

// WriteTool replaces the whole todo tree and asks the client to render it.
type WriteTool struct {
	tc *agent.ToolContext
}

// NewWriteTool creates the write_todo tool.
func NewWriteTool(tc *agent.ToolContext) *WriteTool {
	return &WriteTool{tc: tc}
}

func (t *WriteTool) Name() string { return "write_todo" }

func (t *WriteTool) Description() string {
	return "Replace the structured todo list. Each item needs id, title, and status (pending, in_progress, completed, failed, skipped) and may nest subtasks. Returns the rendered plan."
}

func (t *WriteTool) Schema() json.RawMessage {
	// Items stay free-form objects here; nesting makes a closed schema
	// awkward for the model to satisfy.
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"items": {"type": "object"},
				"description": "The complete structured todo list. Each item should carry id, title, status, and optional subtasks."
			}
		},
		"required": ["todos"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in WriteTodoArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	t.tc.SetTodos(in.Todos)
	todos := t.tc.Todos()

	return &models.ToolResult{
		Success: true,
		Output:  renderPlan("Current Plan Status:", todos),
		Data:    displayData(todos),
	}, nil
}

// UpdateTodoArgs are the arguments for update_todo.
type UpdateTodoArgs struct {
	ID     string `json:"id" jsonschema:"required" jsonschema_description:"ID of the todo item to update"`
	Status string `json:"status" jsonschema:"required,enum=pending,enum=in_progress,enum=completed,enum=failed,enum=skipped" jsonschema_description:"New status for the item"`
}

// UpdateTool flips one todo item's status, searching the whole tree.
type UpdateTool struct {
	tc *agent.ToolContext
}

// NewUpdateTool creates the update_todo tool.
func NewUpdateTool(tc *agent.ToolContext) *UpdateTool {
	return &UpdateTool{tc: tc}
}

func (t *UpdateTool) Name() string { return "update_todo" }

func (t *UpdateTool) Description() string {
	return "Update the status of a single todo item by id. Returns the rendered plan."
}

func (t *UpdateTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[UpdateTodoArgs]()
}

func (t *UpdateTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in UpdateTodoArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	status := models.TodoStatus(in.Status)
	if !models.ValidTodoStatus(status) {
		return models.ToolError(fmt.Sprintf("Error: Invalid status '%s'", in.Status)), nil
	}

	if !t.tc.HasTodos() {
		return models.ToolError("Error: No todo list found."), nil
	}
	if !t.tc.UpdateTodoStatus(in.ID, status) {
		return models.ToolError(fmt.Sprintf("Error: Todo item with ID '%s' not found.", in.ID)), nil
	}

	todos := t.tc.Todos()
	return &models.ToolResult{
		Success: true,
		Output:  renderPlan("Updated Plan Status:", todos),
		Data:    displayData(todos),
	}, nil
}

// Package interaction provides the control-flow tools: asking the user a
// question, finishing the task, starting a new one, switching modes, and the
// markdown-checklist todo updates.
package interaction

import (
	"strconv"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// Tools returns the interaction tool set bound to one session's context.
func Tools(tc *agent.ToolContext) []agent.Tool {
	return []agent.Tool{
		NewAskTool(tc),
		NewCompletionTool(tc),
		NewTaskTool(tc),
		NewSwitchModeTool(tc),
		NewUpdateTodoListTool(tc),
		NewFetchInstructionsTool(tc),
	}
}

// parseChecklist converts a markdown checklist into todo items. Each
// non-empty line becomes one top-level item with a sequential id; the
// leading marker picks the status and lines without one start pending.
func parseChecklist(text string) []*models.TodoItem {
	var items []*models.TodoItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "- ")
		status, title := models.TodoPending, line
		for marker, s := range checklistMarkers {
			if strings.HasPrefix(line, marker) {
				status = s
				title = strings.TrimSpace(line[len(marker):])
				break
			}
		}
		items = append(items, &models.TodoItem{
			ID:     strconv.Itoa(len(items) + 1),
			Title:  title,
			Status: status,
		})
	}
	return items
}

var checklistMarkers = map[string]models.TodoStatus{
	"[ ]": models.TodoPending,
	"[-]": models.TodoInProgress,
	"[x]": models.TodoCompleted,
	"[X]": models.TodoCompleted,
	"[!]": models.TodoFailed,
	"[?]": models.TodoSkipped,
}

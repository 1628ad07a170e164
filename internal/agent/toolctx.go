package agent

import (
	"encoding/json"
	"sync"

	"github.com/ownagent/ownagent/internal/workspace"
	"github.com/ownagent/ownagent/pkg/models"
)

// Execution environments. The web environment never blocks on stdin; the
// interactive tools answer with an ask_user payload instead.
const (
	EnvCLI = "cli"
	EnvWeb = "web"
)

// DefaultMode is the mode a fresh session starts in. The other modes the
// system prompt advertises are architect, ask, debug, and orchestrator.
const DefaultMode = "code"

// ToolContext is the per-session state shared by every tool: the workspace
// resolver, the execution environment, the active mode, and the todo tree.
// Mode and todos are mutated by tools while a step runs, so access is
// serialized here rather than in each tool.
type ToolContext struct {
	resolver *workspace.Resolver
	env      string

	mu    sync.Mutex
	mode  string
	todos []*models.TodoItem
}

// NewToolContext builds the shared state for one session.
func NewToolContext(resolver *workspace.Resolver, env string) *ToolContext {
	if env == "" {
		env = EnvCLI
	}
	return &ToolContext{resolver: resolver, env: env, mode: DefaultMode}
}

// Resolver returns the workspace path resolver.
func (tc *ToolContext) Resolver() *workspace.Resolver {
	return tc.resolver
}

// Root returns the canonical workspace root.
func (tc *ToolContext) Root() string {
	return tc.resolver.Root()
}

// Env reports the execution environment, EnvCLI or EnvWeb.
func (tc *ToolContext) Env() string {
	return tc.env
}

// Mode returns the active mode slug.
func (tc *ToolContext) Mode() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.mode
}

// SetMode replaces the active mode and returns the previous one.
func (tc *ToolContext) SetMode(mode string) string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	old := tc.mode
	tc.mode = mode
	return old
}

// Todos returns a deep copy of the todo tree.
func (tc *ToolContext) Todos() []*models.TodoItem {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return copyTodos(tc.todos)
}

// SetTodos replaces the todo tree.
func (tc *ToolContext) SetTodos(items []*models.TodoItem) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.todos = copyTodos(items)
}

// UpdateTodoStatus sets the status of the item with the given id anywhere in
// the tree. It reports whether the item was found.
func (tc *ToolContext) UpdateTodoStatus(id string, status models.TodoStatus) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	item := models.FindTodo(tc.todos, id)
	if item == nil {
		return false
	}
	item.Status = status
	return true
}

// HasTodos reports whether the todo tree is non-empty.
func (tc *ToolContext) HasTodos() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.todos) > 0
}

// TodoJSON renders the todo tree as indented JSON for injection into the
// model's view of the conversation. ok is false when the tree is empty.
func (tc *ToolContext) TodoJSON() (string, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if len(tc.todos) == 0 {
		return "", false
	}
	data, err := json.MarshalIndent(tc.todos, "", "  ")
	if err != nil {
		return "", false
	}
	return string(data), true
}

func copyTodos(items []*models.TodoItem) []*models.TodoItem {
	if items == nil {
		return nil
	}
	out := make([]*models.TodoItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		dup := *item
		dup.Subtasks = copyTodos(item.Subtasks)
		out = append(out, &dup)
	}
	return out
}

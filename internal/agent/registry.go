package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/pkg/models"
)

// defaultToolTimeout bounds a single tool execution.
const defaultToolTimeout = 120 * time.Second

type registeredTool struct {
	tool      Tool
	validator *jsonschema.Schema // nil when the schema failed to compile
}

// Registry holds the tools one runtime exposes to the model. Registration is
// thread-safe; the catalogue preserves registration order.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*registeredTool
	order   []string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry. logger and metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics *observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]*registeredTool),
		logger:  logger,
		metrics: metrics,
	}
}

// Register adds a tool. Re-registering a name replaces the implementation and
// keeps the original catalogue position.
func (r *Registry) Register(tool Tool) {
	name := tool.Name()
	entry := &registeredTool{tool: tool}
	if schema := tool.Schema(); len(schema) > 0 {
		compiled, err := jsonschema.CompileString(name+".schema.json", string(schema))
		if err != nil {
			r.logger.Warn("tool schema does not compile, argument validation disabled",
				"tool", name, "error", err)
		} else {
			entry.validator = compiled
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = entry
}

// RegisterExternal adds a tool implemented by an opaque invoker, with a
// schema supplied by the remote server.
func (r *Registry) RegisterExternal(name, description string, schema json.RawMessage, invoke ExternalFunc) {
	r.Register(&externalTool{
		name:        name,
		description: description,
		schema:      schema,
		invoke:      invoke,
	})
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns the serialized catalogue shown to the model, in
// registration order.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		entry := r.tools[name]
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionDefinition{
				Name:        name,
				Description: entry.tool.Description(),
				Parameters:  entry.tool.Schema(),
			},
		})
	}
	return defs
}

// Dispatch runs one tool call against raw model-generated arguments. Every
// failure is folded into the result envelope so the model sees an ordinary
// tool message and can self-correct on the next step.
func (r *Registry) Dispatch(ctx context.Context, name, rawArgs string) *models.ToolResult {
	repaired, err := repairJSON(rawArgs)
	if err != nil {
		return models.ToolError(fmt.Sprintf(
			"Error: Invalid JSON arguments generated: %s. Please verify the JSON format.", rawArgs))
	}

	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolError(fmt.Sprintf("Error: Tool %s not found", name))
	}

	if entry.validator != nil {
		var decoded any
		if err := json.Unmarshal([]byte(repaired), &decoded); err == nil {
			if err := entry.validator.Validate(decoded); err != nil {
				return models.ToolError(fmt.Sprintf("Error executing %s: %v", name, err))
			}
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, defaultToolTimeout)
	defer cancel()

	start := time.Now()
	result, err := runTool(execCtx, entry.tool, json.RawMessage(repaired))
	status := "success"
	if err != nil || (result != nil && !result.Success) {
		status = "error"
	}
	r.metrics.RecordToolExecution(name, status, time.Since(start).Seconds())

	if err != nil {
		return models.ToolError(fmt.Sprintf("Error executing %s: %v", name, err))
	}
	if result == nil {
		return models.ToolSuccess("")
	}
	return result
}

// Close releases every registered tool that holds external resources, such
// as a live browser session.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, name := range r.order {
		if closer, ok := r.tools[name].tool.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// runTool invokes the tool, converting a panic into an error so one broken
// handler cannot take down the whole runtime.
func runTool(ctx context.Context, tool Tool, args json.RawMessage) (result *models.ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return tool.Execute(ctx, args)
}

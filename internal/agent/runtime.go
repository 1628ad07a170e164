package agent

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/pkg/models"
)

// MaxSteps caps the model/tool iterations of a single Step call. It is the
// hard stop against a model that never calls attempt_completion.
const MaxSteps = 100

// completionToolName ends the turn when the model calls it.
const completionToolName = "attempt_completion"

//go:embed prompts/todo_injection.txt
var todoInstruction string

// EventHandler receives runtime events in emission order. Handlers run on
// the stepping goroutine and must not block for long.
type EventHandler func(models.AgentEvent)

// Provider streams one chat completion. The returned channel yields deltas
// until the model finishes, then closes. A non-nil error means no stream
// was opened at all.
type Provider interface {
	StreamChat(ctx context.Context, messages []models.Message, tools []ToolDefinition) (<-chan StreamDelta, error)
}

// RuntimeConfig wires one session's collaborators into a Runtime.
type RuntimeConfig struct {
	Provider Provider
	Registry *Registry
	Context  *ContextManager
	Tools    *ToolContext
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Trace    *EventLog
	// MaxSteps overrides the step cap when positive. Tests use low values.
	MaxSteps int
}

// Runtime is the agent loop for one session: it feeds the conversation to
// the provider, routes assembled tool calls through the registry, and emits
// events describing everything that happens. One Step runs at a time.
type Runtime struct {
	provider Provider
	registry *Registry
	context  *ContextManager
	toolCtx  *ToolContext
	logger   *slog.Logger
	metrics  *observability.Metrics
	trace    *EventLog
	maxSteps int

	mu sync.Mutex
}

// NewRuntime builds a runtime. Provider, Registry, Context, and Tools are
// required; Logger, Metrics, and Trace may be nil.
func NewRuntime(cfg RuntimeConfig) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = MaxSteps
	}
	return &Runtime{
		provider: cfg.Provider,
		registry: cfg.Registry,
		context:  cfg.Context,
		toolCtx:  cfg.Tools,
		logger:   logger,
		metrics:  cfg.Metrics,
		trace:    cfg.Trace,
		maxSteps: maxSteps,
	}
}

// Context returns the conversation history manager.
func (rt *Runtime) Context() *ContextManager {
	return rt.context
}

// Tools returns the shared tool state.
func (rt *Runtime) Tools() *ToolContext {
	return rt.toolCtx
}

// Registry returns the tool registry, for late registration of external
// tools.
func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// Close releases resources held by tools, such as a live browser session.
func (rt *Runtime) Close() error {
	return rt.registry.Close()
}

// Step runs one full turn: append the user message, then alternate model
// calls and tool dispatches until the model completes, asks for input, or
// the step cap is hit. Every failure mode surfaces as an event; Step never
// panics on model misbehaviour. Events are delivered to emit in order; a
// nil emit discards them (the trace sink still records them).
func (rt *Runtime) Step(ctx context.Context, userInput string, emit EventHandler) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if emit == nil {
		emit = func(models.AgentEvent) {}
	}
	send := func(ev models.AgentEvent) {
		if rt.trace != nil {
			rt.trace.Record(ev)
		}
		emit(ev)
	}

	rt.context.AddUser(userInput)

	for step := 0; step < rt.maxSteps; step++ {
		messages := rt.context.History()
		if todoJSON, ok := rt.toolCtx.TodoJSON(); ok {
			// Ephemeral reminder: recomputed every step, never saved.
			messages = append(messages, models.SystemMessage(todoReminder(todoJSON)))
		}

		chunks, err := rt.provider.StreamChat(ctx, messages, rt.registry.Definitions())
		if err != nil {
			rt.logger.Error("stream request failed", "error", err)
			send(models.ErrorEvent("Encountered empty response from LLM"))
			rt.metrics.RecordStep("error")
			return
		}

		full := interpretStream(chunks, send)
		if full == nil {
			send(models.ErrorEvent("Encountered empty response from LLM"))
			rt.metrics.RecordStep("error")
			return
		}
		// The assembled message goes to the trace only; clients already saw
		// its deltas.
		if rt.trace != nil {
			rt.trace.Record(models.FullMessage(full))
		}

		hasContent := full.Content != ""
		hasTools := len(full.ToolCalls) > 0
		hasReasoning := full.ReasoningContent != ""

		if !hasContent && !hasTools && !hasReasoning {
			rt.logger.Warn("empty model response, stopping turn")
			send(models.Finished("Done"))
			rt.metrics.RecordStep("finished")
			return
		}
		if !hasContent && !hasTools && hasReasoning {
			rt.logger.Warn("response contained only reasoning, model may have stopped early")
			full.Content = "(Model stopped after thinking)"
		}

		// An id-less tool call cannot be answered: the tool message that
		// carries its output would not match anything. Fail rather than
		// invent an id.
		for _, tc := range full.ToolCalls {
			if tc.ID == "" {
				rt.logger.Error("model returned a tool call without an id", "tool", tc.Function.Name)
				send(models.ErrorEvent(fmt.Sprintf("Model returned a tool call without an id (tool %q)", tc.Function.Name)))
				rt.metrics.RecordStep("error")
				return
			}
		}

		rt.context.AddAssistant(*full)

		if !hasTools {
			send(models.Finished("Done"))
			rt.metrics.RecordStep("finished")
			return
		}

		for _, tc := range full.ToolCalls {
			send(models.ToolCallStarted(tc.ID, tc.Function.Name, tc.Function.Arguments))

			result := rt.registry.Dispatch(ctx, tc.Function.Name, tc.Function.Arguments)

			rt.context.AddToolOutput(tc.ID, result.Output)
			send(models.ToolCallFinished(tc.ID, result.Output))

			if result.Action() == models.ActionAskUser {
				send(models.Interrupt(result.Data))
				rt.metrics.RecordStep("interrupt")
				return
			}
			if tc.Function.Name == completionToolName {
				send(models.Finished(result.Output))
				rt.metrics.RecordStep("finished")
				return
			}
		}
		rt.metrics.RecordStep("tool_calls")
	}

	rt.logger.Error("step cap reached", "max_steps", rt.maxSteps)
	send(models.ErrorEvent(fmt.Sprintf("Stopped after %d steps without completing the task", rt.maxSteps)))
	rt.metrics.RecordStep("max_steps")
}

func todoReminder(todoJSON string) string {
	return "## Current Todo List Status (JSON)\n\n" + todoJSON + "\n\n" + todoInstruction
}

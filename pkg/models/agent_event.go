package models

// AgentEvent is the unit of the runtime's event stream. Every event carries
// a type discriminator and a content payload whose shape depends on the
// type: plain text for deltas and terminal events, structured objects for
// tool traffic and interrupts. The same records cross the SSE boundary as
// `data: <json>` frames, except FullMessage which stays internal.
type AgentEvent struct {
	Type    AgentEventType `json:"type"`
	Content any            `json:"content"`
}

// AgentEventType identifies the kind of agent event.
type AgentEventType string

const (
	// EventThinkingDelta streams one reasoning fragment as it arrives.
	EventThinkingDelta AgentEventType = "thinking_delta"

	// EventContentDelta streams one content fragment as it arrives.
	EventContentDelta AgentEventType = "content_delta"

	// EventFullMessage carries the assembled assistant message after the
	// chunk stream ends. Internal to the runtime; never sent to clients.
	EventFullMessage AgentEventType = "full_message"

	// EventToolCall announces a tool invocation about to run.
	EventToolCall AgentEventType = "tool_call"

	// EventToolOutput carries the output of a finished tool invocation.
	EventToolOutput AgentEventType = "tool_output"

	// EventInterrupt pauses the turn pending user input (ask_user).
	EventInterrupt AgentEventType = "interrupt"

	// EventFinished terminates the turn normally.
	EventFinished AgentEventType = "finished"

	// EventError terminates the turn with a non-recoverable failure.
	EventError AgentEventType = "error"
)

// ToolCallEvent is the content payload of an EventToolCall record.
// Args is the raw argument string exactly as the model produced it.
type ToolCallEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args string `json:"args"`
}

// ToolOutputEvent is the content payload of an EventToolOutput record.
type ToolOutputEvent struct {
	ID     string `json:"id"`
	Output string `json:"output"`
}

// ThinkingDelta builds a reasoning fragment event.
func ThinkingDelta(text string) AgentEvent {
	return AgentEvent{Type: EventThinkingDelta, Content: text}
}

// ContentDelta builds a content fragment event.
func ContentDelta(text string) AgentEvent {
	return AgentEvent{Type: EventContentDelta, Content: text}
}

// FullMessage wraps the assembled assistant message.
func FullMessage(msg *Message) AgentEvent {
	return AgentEvent{Type: EventFullMessage, Content: msg}
}

// ToolCallStarted announces a tool invocation.
func ToolCallStarted(id, name, args string) AgentEvent {
	return AgentEvent{Type: EventToolCall, Content: ToolCallEvent{ID: id, Name: name, Args: args}}
}

// ToolCallFinished carries a tool invocation's output.
func ToolCallFinished(id, output string) AgentEvent {
	return AgentEvent{Type: EventToolOutput, Content: ToolOutputEvent{ID: id, Output: output}}
}

// Interrupt pauses the turn with the control payload of the interrupting
// tool, typically {action: "ask_user", question, options}.
func Interrupt(payload map[string]any) AgentEvent {
	return AgentEvent{Type: EventInterrupt, Content: payload}
}

// Finished terminates the turn with a closing text.
func Finished(text string) AgentEvent {
	return AgentEvent{Type: EventFinished, Content: text}
}

// ErrorEvent terminates the turn with an error description.
func ErrorEvent(text string) AgentEvent {
	return AgentEvent{Type: EventError, Content: text}
}

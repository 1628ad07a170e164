// Package models provides the domain types shared by the agent runtime,
// the tool set, and the HTTP gateway.
package models

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation history entry. The JSON shape mirrors the
// OpenAI chat format so session files round-trip through the transport
// unchanged: system and user messages carry content only, assistant
// messages may carry content, reasoning, and tool calls, and tool messages
// answer exactly one assistant tool call via ToolCallID.
type Message struct {
	Role             Role       `json:"role"`
	Content          string     `json:"content,omitempty"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string     `json:"tool_call_id,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolMessage builds the response to one assistant tool call.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

// ToolCall is an assistant request to invoke a named tool. The nested
// function object matches the provider wire format; Arguments is the raw
// JSON blob as produced by the model, repaired and parsed only at dispatch.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the callee name and raw argument JSON.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

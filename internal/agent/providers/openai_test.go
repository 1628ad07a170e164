package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

func TestConvertMessages(t *testing.T) {
	history := []models.Message{
		models.SystemMessage("be helpful"),
		models.UserMessage("list files"),
		{
			Role:             models.RoleAssistant,
			ReasoningContent: "need to look around",
			ToolCalls: []models.ToolCall{
				{
					ID:       "call_1",
					Type:     "function",
					Function: models.ToolCallFunction{Name: "list_files", Arguments: `{"path":"."}`},
				},
			},
		},
		models.ToolMessage("call_1", "main.go"),
	}

	msgs := convertMessages(history)
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != "be helpful" {
		t.Errorf("system message = %+v", msgs[0])
	}
	if msgs[2].ReasoningContent != "need to look around" {
		t.Errorf("reasoning dropped: %+v", msgs[2])
	}
	if len(msgs[2].ToolCalls) != 1 {
		t.Fatalf("assistant tool calls = %d, want 1", len(msgs[2].ToolCalls))
	}
	call := msgs[2].ToolCalls[0]
	if call.ID != "call_1" || call.Type != openai.ToolTypeFunction {
		t.Errorf("tool call = %+v", call)
	}
	if call.Function.Name != "list_files" || call.Function.Arguments != `{"path":"."}` {
		t.Errorf("tool call function = %+v", call.Function)
	}
	if msgs[3].Role != "tool" || msgs[3].ToolCallID != "call_1" || msgs[3].Content != "main.go" {
		t.Errorf("tool message = %+v", msgs[3])
	}
}

func TestConvertTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	defs := []agent.ToolDefinition{{
		Type: "function",
		Function: agent.FunctionDefinition{
			Name:        "list_files",
			Description: "List directory entries.",
			Parameters:  schema,
		},
	}}

	tools := convertTools(defs)
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}
	if tools[0].Type != openai.ToolTypeFunction {
		t.Errorf("type = %q", tools[0].Type)
	}
	if tools[0].Function.Name != "list_files" || tools[0].Function.Description != "List directory entries." {
		t.Errorf("function = %+v", tools[0].Function)
	}
	params, ok := tools[0].Function.Parameters.(json.RawMessage)
	if !ok {
		t.Fatalf("parameters have type %T, want json.RawMessage", tools[0].Function.Parameters)
	}
	if string(params) != string(schema) {
		t.Errorf("parameters = %s", params)
	}
}

func TestStreamChatStreamsDeltas(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"reasoning_content":"plan"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"echo","arguments":"{\"message\":"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"hi\"}"}}]}}]}`,
		}
		for _, chunk := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAI(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Model:   "glm4.7",
	})

	defs := []agent.ToolDefinition{{
		Type: "function",
		Function: agent.FunctionDefinition{
			Name:       "echo",
			Parameters: json.RawMessage(`{"type":"object"}`),
		},
	}}
	stream, err := provider.StreamChat(context.Background(), []models.Message{models.UserMessage("hi")}, defs)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var deltas []agent.StreamDelta
	for delta := range stream {
		deltas = append(deltas, delta)
	}

	if len(deltas) != 5 {
		t.Fatalf("deltas = %d, want 5 (role-only chunk skipped): %+v", len(deltas), deltas)
	}
	if deltas[0].Reasoning != "plan" {
		t.Errorf("deltas[0] = %+v", deltas[0])
	}
	if deltas[1].Content != "Hel" || deltas[2].Content != "lo" {
		t.Errorf("content deltas = %+v %+v", deltas[1], deltas[2])
	}
	first := deltas[3].ToolCalls[0]
	if first.Index != 0 || first.ID != "call_1" || first.Name != "echo" || first.Arguments != `{"message":` {
		t.Errorf("first tool fragment = %+v", first)
	}
	second := deltas[4].ToolCalls[0]
	if second.Index != 0 || second.ID != "" || second.Arguments != `"hi"}` {
		t.Errorf("second tool fragment = %+v", second)
	}

	// Request shape.
	if gotReq.Model != "glm4.7" || !gotReq.Stream {
		t.Errorf("request model/stream = %q/%v", gotReq.Model, gotReq.Stream)
	}
	if gotReq.Temperature == 0 {
		t.Errorf("temperature was dropped from the request")
	}
	if choice, _ := gotReq.ToolChoice.(string); choice != "auto" {
		t.Errorf("tool_choice = %v, want auto", gotReq.ToolChoice)
	}
	if len(gotReq.Tools) != 1 || gotReq.Tools[0].Function.Name != "echo" {
		t.Errorf("request tools = %+v", gotReq.Tools)
	}
}

func TestStreamChatNoToolChoiceWithoutTools(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	provider := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "glm4.7"})
	stream, err := provider.StreamChat(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	for range stream {
	}
	if gotReq.ToolChoice != nil {
		t.Errorf("tool_choice = %v, want unset", gotReq.ToolChoice)
	}
	if len(gotReq.Tools) != 0 {
		t.Errorf("tools = %+v, want none", gotReq.Tools)
	}
}

func TestStreamChatRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom"}}`)
	}))
	defer server.Close()

	provider := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1", Model: "glm4.7"})
	stream, err := provider.StreamChat(context.Background(), []models.Message{models.UserMessage("hi")}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if stream != nil {
		t.Errorf("stream = %v, want nil", stream)
	}
}

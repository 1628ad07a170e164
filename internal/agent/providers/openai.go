// Package providers adapts vendor LLM SDKs to the agent.Provider interface.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/pkg/models"
)

// OpenAIConfig configures a provider speaking the OpenAI chat completion
// protocol. BaseURL points it at any compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// OpenAIProvider streams chat completions from an OpenAI-compatible API.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewOpenAI builds a provider from cfg.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Model returns the model identifier requests are sent with.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// StreamChat opens one streaming chat completion and forwards the raw
// deltas. The channel closes when the model finishes; assembly of fragments
// is the caller's concern.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []models.Message, tools []agent.ToolDefinition) (<-chan agent.StreamDelta, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: convertMessages(messages),
		// Effectively zero. A literal 0 is dropped by the wire encoding
		// and would fall back to the server default.
		Temperature: math.SmallestNonzeroFloat32,
		Stream:      true,
	}
	if len(tools) > 0 {
		req.Tools = convertTools(tools)
		req.ToolChoice = "auto"
	}

	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		p.metrics.RecordLLMRequest(p.model, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("create chat stream: %w", err)
	}

	chunks := make(chan agent.StreamDelta)
	go p.pump(stream, chunks, start)
	return chunks, nil
}

// pump forwards stream deltas until EOF. A mid-stream receive failure ends
// the stream early: whatever arrived is still a usable partial turn, and
// the failure is logged and counted.
func (p *OpenAIProvider) pump(stream *openai.ChatCompletionStream, chunks chan<- agent.StreamDelta, start time.Time) {
	defer close(chunks)
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				p.metrics.RecordLLMRequest(p.model, "success", time.Since(start).Seconds())
				return
			}
			p.logger.Error("stream receive failed", "model", p.model, "error", err)
			p.metrics.RecordLLMRequest(p.model, "error", time.Since(start).Seconds())
			return
		}
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		out := agent.StreamDelta{
			Reasoning: delta.ReasoningContent,
			Content:   delta.Content,
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			out.ToolCalls = append(out.ToolCalls, agent.ToolCallDelta{
				Index:     index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if out.Reasoning == "" && out.Content == "" && len(out.ToolCalls) == 0 {
			continue
		}
		chunks <- out
	}
}

func convertMessages(messages []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted := openai.ChatCompletionMessage{
			Role:             string(msg.Role),
			Content:          msg.Content,
			ReasoningContent: msg.ReasoningContent,
			ToolCallID:       msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			converted.ToolCalls = append(converted.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, converted)
	}
	return out
}

func convertTools(defs []agent.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters:  def.Function.Parameters,
			},
		})
	}
	return out
}

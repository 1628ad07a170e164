package agent

import (
	"sort"
	"strings"

	"github.com/ownagent/ownagent/pkg/models"
)

// StreamDelta is one chunk of a streaming chat completion, reduced to the
// fields the interpreter consumes. The transport adapter must not reorder or
// merge chunks; assembly happens here.
type StreamDelta struct {
	Reasoning string
	Content   string
	ToolCalls []ToolCallDelta
}

// ToolCallDelta is a fragment of one tool call. Index identifies the call
// within the response; ID, Name, and Arguments arrive in pieces and
// concatenate in arrival order.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

type toolCallAccumulator struct {
	id   strings.Builder
	name strings.Builder
	args strings.Builder
}

// interpretStream folds the chunk stream into delta events and the assembled
// assistant message. Reasoning and content fragments are forwarded to emit as
// they arrive; tool-call fragments are only accumulated, never emitted. The
// final tool-call list is ordered by ascending index.
func interpretStream(chunks <-chan StreamDelta, emit EventHandler) *models.Message {
	if chunks == nil {
		return nil
	}

	var reasoning, content strings.Builder
	buffers := make(map[int]*toolCallAccumulator)

	for chunk := range chunks {
		if chunk.Reasoning != "" {
			reasoning.WriteString(chunk.Reasoning)
			emit(models.ThinkingDelta(chunk.Reasoning))
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			emit(models.ContentDelta(chunk.Content))
		}
		for _, frag := range chunk.ToolCalls {
			acc := buffers[frag.Index]
			if acc == nil {
				acc = &toolCallAccumulator{}
				buffers[frag.Index] = acc
			}
			acc.id.WriteString(frag.ID)
			acc.name.WriteString(frag.Name)
			acc.args.WriteString(frag.Arguments)
		}
	}

	var calls []models.ToolCall
	if len(buffers) > 0 {
		indexes := make([]int, 0, len(buffers))
		for idx := range buffers {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			acc := buffers[idx]
			calls = append(calls, models.ToolCall{
				ID:   acc.id.String(),
				Type: "function",
				Function: models.ToolCallFunction{
					Name:      acc.name.String(),
					Arguments: acc.args.String(),
				},
			})
		}
	}

	return &models.Message{
		Role:             models.RoleAssistant,
		ReasoningContent: reasoning.String(),
		Content:          content.String(),
		ToolCalls:        calls,
	}
}

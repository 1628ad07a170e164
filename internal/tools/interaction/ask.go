package interaction

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// FollowUpOption is one suggested answer the user can pick. Choosing an
// option that carries a mode also switches the session to that mode.
type FollowUpOption struct {
	Text string `json:"text" jsonschema:"required" jsonschema_description:"Suggested answer the user can pick"`
	Mode string `json:"mode,omitempty" jsonschema_description:"Optional mode slug to switch to if this suggestion is chosen (e.g., code, architect)"`
}

// AskArgs are the arguments for ask_followup_question.
type AskArgs struct {
	Question string           `json:"question" jsonschema:"required" jsonschema_description:"Clear, specific question that captures the missing information you need"`
	FollowUp []FollowUpOption `json:"follow_up" jsonschema:"required,minItems=2,maxItems=4" jsonschema_description:"Required list of 2-4 suggested responses; each suggestion must be a complete, actionable answer and may include a mode switch"`
}

// AskTool asks the user a question. In the web environment it returns an
// ask_user payload and the runtime pauses the loop; in the CLI it blocks on
// In until the user picks an option or types a custom answer.
type AskTool struct {
	tc *agent.ToolContext

	In  io.Reader
	Out io.Writer
}

// NewAskTool creates the ask_followup_question tool reading from stdin.
func NewAskTool(tc *agent.ToolContext) *AskTool {
	return &AskTool{tc: tc, In: os.Stdin, Out: os.Stdout}
}

func (t *AskTool) Name() string { return "ask_followup_question" }

func (t *AskTool) Description() string {
	return "Ask the user a question to gather the information needed to finish the task. Provide 2-4 complete suggested answers; the user may also type their own."
}

func (t *AskTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[AskArgs]()
}

func (t *AskTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in AskArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	if t.tc.Env() == agent.EnvWeb {
		return &models.ToolResult{
			Success: true,
			Output:  "[WAITING FOR USER INPUT]",
			Data: map[string]any{
				"action":   models.ActionAskUser,
				"question": in.Question,
				"options":  in.FollowUp,
			},
		}, nil
	}

	answer, err := t.prompt(in)
	if err != nil {
		return nil, err
	}
	return &models.ToolResult{
		Success: true,
		Output:  "USER ANSWER: " + answer,
		Data: map[string]any{
			"question":  in.Question,
			"follow_up": in.FollowUp,
		},
	}, nil
}

func (t *AskTool) prompt(in AskArgs) (string, error) {
	fmt.Fprintf(t.Out, "\nQUESTION: %s\n", in.Question)
	for i, opt := range in.FollowUp {
		modeInfo := ""
		if opt.Mode != "" {
			modeInfo = fmt.Sprintf(" (Switch to Mode: %s)", opt.Mode)
		}
		fmt.Fprintf(t.Out, "%d. %s%s\n", i+1, opt.Text, modeInfo)
	}
	fmt.Fprintln(t.Out, "0. Custom Input (Enter your own answer)")

	scanner := bufio.NewScanner(t.In)
	for {
		fmt.Fprint(t.Out, "\nSelect an option (enter number): ")
		line, err := readLine(scanner)
		if err != nil {
			return "", err
		}
		if line == "" {
			continue
		}
		choice, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(t.Out, "Invalid input, enter a number.")
			continue
		}

		switch {
		case choice == 0:
			fmt.Fprint(t.Out, "Enter your answer: ")
			custom, err := readLine(scanner)
			if err != nil {
				return "", err
			}
			if custom == "" {
				fmt.Fprintln(t.Out, "Answer cannot be empty.")
				continue
			}
			return custom, nil
		case choice >= 1 && choice <= len(in.FollowUp):
			opt := in.FollowUp[choice-1]
			if opt.Mode != "" {
				t.tc.SetMode(opt.Mode)
				fmt.Fprintf(t.Out, "[System] Switching mode to: %s\n", opt.Mode)
			}
			return opt.Text, nil
		default:
			fmt.Fprintf(t.Out, "Invalid option, enter a number between 0 and %d.\n", len(in.FollowUp))
		}
	}
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", errors.New("input closed while waiting for an answer")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// Package exec provides the execute_command tool: shell execution inside the
// workspace with combined output capture and a hard timeout.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// ExecuteCommandArgs are the arguments for execute_command.
type ExecuteCommandArgs struct {
	Command string `json:"command" jsonschema:"required" jsonschema_description:"Shell command to execute. This should be valid for the current operating system. Ensure the command is properly formatted and does not contain any harmful instructions."`
	Cwd     string `json:"cwd,omitempty" jsonschema_description:"Optional working directory for the command, relative or absolute"`
}

// CommandTool runs one shell command and reports stdout, stderr, and the
// exit status. The dispatch deadline bounds execution; a command that
// outlives it is killed and reported as timed out.
type CommandTool struct {
	tc *agent.ToolContext
}

// NewCommandTool creates the execute_command tool.
func NewCommandTool(tc *agent.ToolContext) *CommandTool {
	return &CommandTool{tc: tc}
}

// Tools returns the system tool set bound to one session's context.
func Tools(tc *agent.ToolContext) []agent.Tool {
	return []agent.Tool{NewCommandTool(tc)}
}

func (t *CommandTool) Name() string { return "execute_command" }

func (t *CommandTool) Description() string {
	return "Execute a shell command from the workspace root (or an optional cwd inside the workspace). Captures stdout and stderr; commands are killed after 120 seconds."
}

func (t *CommandTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ExecuteCommandArgs]()
}

func (t *CommandTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in ExecuteCommandArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	if in.Command == "" {
		return models.ToolError("Error: command is required"), nil
	}

	dir := t.tc.Root()
	if in.Cwd != "" {
		resolved, err := t.tc.Resolver().Resolve(in.Cwd)
		if err != nil {
			return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
		}
		dir = resolved
	}

	cmd := shellCommand(ctx, in.Command)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return models.ToolError("Error: Command execution timed out"), nil
	}

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\nSTDERR:\n" + stderr.String()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return models.ToolError(fmt.Sprintf("Command failed (code %d):\n%s", exitErr.ExitCode(), output)), nil
		}
		return models.ToolError(fmt.Sprintf("Failed to execute command: %v", runErr)), nil
	}
	return models.ToolSuccess(output), nil
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", command)
}

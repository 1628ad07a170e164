package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// EditFileArgs are the arguments for edit_file.
type EditFileArgs struct {
	FilePath             string `json:"file_path" jsonschema:"required" jsonschema_description:"The path to the file to modify or create, relative to the workspace"`
	OldString            string `json:"old_string" jsonschema:"required" jsonschema_description:"The exact literal text to replace (must match the file contents exactly, including all whitespace and indentation). For single replacements include at least 3 lines of context before and after the target text. Use an empty string to create a new file."`
	NewString            string `json:"new_string" jsonschema:"required" jsonschema_description:"The exact literal text to replace old_string with. When creating a new file (old_string is empty), this becomes the file content."`
	ExpectedReplacements int    `json:"expected_replacements,omitempty" jsonschema:"minimum=1,default=1" jsonschema_description:"Number of replacements expected. Defaults to 1. Set it when replacing multiple occurrences of the same text."`
}

// EditTool performs exact literal replacement, or creates a file when
// old_string is empty.
type EditTool struct {
	tc *agent.ToolContext
}

// NewEditTool creates the edit_file tool.
func NewEditTool(tc *agent.ToolContext) *EditTool {
	return &EditTool{tc: tc}
}

func (t *EditTool) Name() string { return "edit_file" }

func (t *EditTool) Description() string {
	return "Replace an exact literal string in a file. The occurrence count must equal expected_replacements or nothing is changed. An empty old_string creates a new file with new_string as its content."
}

func (t *EditTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[EditFileArgs]()
}

func (t *EditTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in EditFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	if in.ExpectedReplacements < 1 {
		in.ExpectedReplacements = 1
	}

	target, err := t.tc.Resolver().Resolve(in.FilePath)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}

	if in.OldString == "" {
		if _, err := os.Stat(target); err == nil {
			return models.ToolError(fmt.Sprintf("Error: File already exists, cannot create: %s", in.FilePath)), nil
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return models.ToolError(fmt.Sprintf("Failed to edit file: %v", err)), nil
		}
		if err := os.WriteFile(target, []byte(in.NewString), 0o644); err != nil {
			return models.ToolError(fmt.Sprintf("Failed to edit file: %v", err)), nil
		}
		return models.ToolSuccess(fmt.Sprintf("Successfully created file: %s", in.FilePath)), nil
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: File not found: %s", in.FilePath)), nil
	}
	content := string(data)

	count := strings.Count(content, in.OldString)
	if count == 0 {
		return models.ToolError("Error: 'old_string' not found in file."), nil
	}
	if count != in.ExpectedReplacements {
		return models.ToolError(fmt.Sprintf(
			"Error: Expected %d replacements, found %d. Please provide more context.",
			in.ExpectedReplacements, count)), nil
	}

	updated := strings.ReplaceAll(content, in.OldString, in.NewString)
	if err := os.WriteFile(target, []byte(updated), 0o644); err != nil {
		return models.ToolError(fmt.Sprintf("Failed to edit file: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Successfully replaced %d occurrence(s).", count)), nil
}

package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// WriteToFileArgs are the arguments for write_to_file.
type WriteToFileArgs struct {
	Path    string `json:"path" jsonschema:"required" jsonschema_description:"The path of the file to write to, relative to the workspace"`
	Content string `json:"content" jsonschema:"required" jsonschema_description:"The content to write to the file. ALWAYS provide the COMPLETE intended content of the file, without any truncation or omissions. Do NOT include line numbers in the content."`
}

// WriteTool writes a whole file, creating parent directories as needed.
type WriteTool struct {
	tc *agent.ToolContext
}

// NewWriteTool creates the write_to_file tool.
func NewWriteTool(tc *agent.ToolContext) *WriteTool {
	return &WriteTool{tc: tc}
}

func (t *WriteTool) Name() string { return "write_to_file" }

func (t *WriteTool) Description() string {
	return "Write complete content to a file in the workspace, overwriting it if it exists and creating it (with any missing parent directories) if it does not."
}

func (t *WriteTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[WriteToFileArgs]()
}

func (t *WriteTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in WriteToFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	target, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return models.ToolError(fmt.Sprintf("Failed to write file: %v", err)), nil
	}
	if err := os.WriteFile(target, []byte(in.Content), 0o644); err != nil {
		return models.ToolError(fmt.Sprintf("Failed to write file: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Successfully wrote to: %s", in.Path)), nil
}

// DeleteFileArgs are the arguments for delete_file.
type DeleteFileArgs struct {
	Path string `json:"path" jsonschema:"required" jsonschema_description:"Path to the file or directory to delete, relative to the workspace"`
}

// DeleteTool removes a file or a directory tree.
type DeleteTool struct {
	tc *agent.ToolContext
}

// NewDeleteTool creates the delete_file tool.
func NewDeleteTool(tc *agent.ToolContext) *DeleteTool {
	return &DeleteTool{tc: tc}
}

func (t *DeleteTool) Name() string { return "delete_file" }

func (t *DeleteTool) Description() string {
	return "Delete a file or directory in the workspace. Directories are removed recursively with all their contents. The operation cannot be undone."
}

func (t *DeleteTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[DeleteFileArgs]()
}

func (t *DeleteTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in DeleteFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	target, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: Path does not exist: %s", in.Path)), nil
	}

	if info.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return models.ToolError(fmt.Sprintf("Failed to delete: %v", err)), nil
		}
		return models.ToolSuccess(fmt.Sprintf("Successfully deleted directory: %s", in.Path)), nil
	}

	if err := os.Remove(target); err != nil {
		return models.ToolError(fmt.Sprintf("Failed to delete: %v", err)), nil
	}
	return models.ToolSuccess(fmt.Sprintf("Successfully deleted file: %s", in.Path)), nil
}

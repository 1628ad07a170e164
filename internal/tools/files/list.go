// Package files provides the workspace filesystem tools: directory listing,
// multi-file reads, whole-file writes, deletion, regex search, literal
// replacement, and search/replace diff application. Every path is resolved
// through the session's workspace resolver before any I/O.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// ListFilesArgs are the arguments for list_files.
type ListFilesArgs struct {
	Path      string `json:"path" jsonschema:"required" jsonschema_description:"Directory path to inspect, relative to the workspace"`
	Recursive bool   `json:"recursive" jsonschema:"required" jsonschema_description:"Set true to list contents recursively; false to show only the top level"`
}

// ListTool lists directory contents, suffixing directories with a slash.
type ListTool struct {
	tc *agent.ToolContext
}

// NewListTool creates the list_files tool.
func NewListTool(tc *agent.ToolContext) *ListTool {
	return &ListTool{tc: tc}
}

func (t *ListTool) Name() string { return "list_files" }

func (t *ListTool) Description() string {
	return "List files and directories at a path inside the workspace. Directories are suffixed with '/'; results are sorted. Set recursive to walk the whole subtree."
}

func (t *ListTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ListFilesArgs]()
}

func (t *ListTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in ListFilesArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	target, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: Path does not exist: %s", target)), nil
	}
	if !info.IsDir() {
		return models.ToolError(fmt.Sprintf("Error: Path is not a directory: %s", target)), nil
	}

	var results []string
	if in.Recursive {
		err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == target {
				return nil
			}
			rel, err := filepath.Rel(target, path)
			if err != nil {
				return err
			}
			if d.IsDir() {
				rel += "/"
			}
			results = append(results, rel)
			return nil
		})
		if err != nil {
			return models.ToolError(fmt.Sprintf("Failed to list files: %v", err)), nil
		}
	} else {
		entries, err := os.ReadDir(target)
		if err != nil {
			return models.ToolError(fmt.Sprintf("Failed to list files: %v", err)), nil
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				name += "/"
			}
			results = append(results, name)
		}
	}

	sort.Strings(results)
	return models.ToolSuccess(strings.Join(results, "\n")), nil
}

package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// SearchFilesArgs are the arguments for search_files.
type SearchFilesArgs struct {
	Path        string `json:"path" jsonschema:"required" jsonschema_description:"Directory to search recursively, relative to the workspace"`
	Regex       string `json:"regex" jsonschema:"required" jsonschema_description:"Regular expression pattern to match against each line"`
	FilePattern string `json:"file_pattern,omitempty" jsonschema_description:"Optional glob to limit which files are searched (e.g., *.go)"`
}

// SearchTool greps a directory tree line by line.
type SearchTool struct {
	tc *agent.ToolContext
}

// NewSearchTool creates the search_files tool.
func NewSearchTool(tc *agent.ToolContext) *SearchTool {
	return &SearchTool{tc: tc}
}

func (t *SearchTool) Name() string { return "search_files" }

func (t *SearchTool) Description() string {
	return "Search files under a directory for a regular expression. Each match is reported as 'path:line: text' with the path relative to the workspace. An optional glob restricts which file names are searched."
}

func (t *SearchTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[SearchFilesArgs]()
}

func (t *SearchTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in SearchFilesArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	root, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return models.ToolError(fmt.Sprintf("Error: Path is not a directory: %s", in.Path)), nil
	}

	regex, err := regexp.Compile(in.Regex)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Invalid regex: %v", err)), nil
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if in.FilePattern != "" {
			ok, err := filepath.Match(in.FilePattern, d.Name())
			if err != nil || !ok {
				return nil
			}
		}

		data, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(data) {
			return nil // unreadable or binary, skip
		}

		rel, err := filepath.Rel(t.tc.Root(), path)
		if err != nil {
			rel = path
		}
		for i, line := range splitLines(string(data)) {
			if regex.MatchString(line) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, i+1, strings.TrimSpace(line)))
			}
		}
		return nil
	})
	if walkErr != nil {
		return models.ToolError(fmt.Sprintf("Search failed: %v", walkErr)), nil
	}

	if len(matches) == 0 {
		return models.ToolSuccess("No matches found."), nil
	}
	return models.ToolSuccess(strings.Join(matches, "\n")), nil
}

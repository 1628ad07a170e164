package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// maxReadFiles bounds one read_file call.
const maxReadFiles = 5

// ReadFileItem names one file to read, optionally restricted to line ranges.
type ReadFileItem struct {
	Path       string  `json:"path" jsonschema:"required" jsonschema_description:"Path to the file to read, relative to the workspace"`
	LineRanges [][]int `json:"line_ranges,omitempty" jsonschema_description:"Optional line ranges to read. Each range is a [start, end] pair with 1-based inclusive line numbers. Use multiple ranges for non-contiguous sections."`
}

// ReadFileArgs are the arguments for read_file.
type ReadFileArgs struct {
	Files []ReadFileItem `json:"files" jsonschema:"required" jsonschema_description:"List of files to read (at most 5); request related files together"`
}

// ReadTool reads up to five files per call, numbering every line.
type ReadTool struct {
	tc *agent.ToolContext
}

// NewReadTool creates the read_file tool.
func NewReadTool(tc *agent.ToolContext) *ReadTool {
	return &ReadTool{tc: tc}
}

func (t *ReadTool) Name() string { return "read_file" }

func (t *ReadTool) Description() string {
	return "Read the contents of up to 5 files. Output is line-numbered and each file is introduced by a '--- <path> ---' separator. Line ranges narrow the read to 1-based inclusive [start, end] spans."
}

func (t *ReadTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ReadFileArgs]()
}

func (t *ReadTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in ReadFileArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}
	if len(in.Files) > maxReadFiles {
		return models.ToolError(fmt.Sprintf("Error: Too many files requested; at most %d per call.", maxReadFiles)), nil
	}

	var parts []string
	for _, item := range in.Files {
		parts = append(parts, t.readOne(item))
	}
	return models.ToolSuccess(strings.Join(parts, "\n\n")), nil
}

// readOne renders one file entry. Per-file failures become inline messages so
// the remaining files still come through.
func (t *ReadTool) readOne(item ReadFileItem) string {
	target, err := t.tc.Resolver().Resolve(item.Path)
	if err != nil {
		return fmt.Sprintf("Failed to read %s: %v", item.Path, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Sprintf("Error: File not found: %s", item.Path)
	}
	if info.IsDir() {
		return fmt.Sprintf("Error: Path is not a file: %s", item.Path)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Sprintf("Failed to read %s: %v", item.Path, err)
	}
	if !utf8.Valid(data) {
		return fmt.Sprintf("Error: Cannot decode file (binary?): %s", item.Path)
	}

	lines := splitLines(string(data))

	var display []string
	if len(item.LineRanges) > 0 {
		for _, r := range item.LineRanges {
			if len(r) != 2 {
				return fmt.Sprintf("Failed to read %s: invalid line range %v", item.Path, r)
			}
			start, end := r[0], r[1]
			if start < 1 {
				start = 1
			}
			if end > len(lines) {
				end = len(lines)
			}
			for i := start; i <= end; i++ {
				display = append(display, fmt.Sprintf("%4d | %s", i, strings.TrimRight(lines[i-1], " \t\r\n")))
			}
		}
	} else {
		for i, line := range lines {
			display = append(display, fmt.Sprintf("%4d | %s", i+1, strings.TrimRight(line, " \t\r\n")))
		}
	}

	return fmt.Sprintf("--- %s ---\n%s", item.Path, strings.Join(display, "\n"))
}

// splitLines splits on newlines without introducing a phantom final line for
// newline-terminated content.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// ApplyDiffArgs are the arguments for apply_diff.
type ApplyDiffArgs struct {
	Path string `json:"path" jsonschema:"required" jsonschema_description:"Path of the file to modify, relative to the workspace"`
	Diff string `json:"diff" jsonschema:"required" jsonschema_description:"One or more search/replace blocks. Each block is '<<<<<<< SEARCH', a ':start_line:N' marker, '-------', the exact original lines, '=======', the replacement lines, '>>>>>>> REPLACE'."`
}

// diffBlockRE matches one search/replace block. DOTALL so the bodies span
// lines; non-greedy so adjacent blocks do not merge.
var diffBlockRE = regexp.MustCompile(
	`(?s)<<<<<<< SEARCH\n:start_line:(\d+)\n-------\n(.*?)\n=======\n(.*?)\n>>>>>>> REPLACE`)

// replacement is one validated block, expressed as a line span to substitute.
type replacement struct {
	start   int // 0-based first line of the span
	end     int // exclusive
	content string
}

// ApplyDiffTool edits a file through line-anchored search/replace blocks.
// Every block is validated against the current content before any change is
// made, and blocks apply bottom-up so earlier substitutions cannot shift the
// line numbers of later ones.
type ApplyDiffTool struct {
	tc *agent.ToolContext
}

// NewApplyDiffTool creates the apply_diff tool.
func NewApplyDiffTool(tc *agent.ToolContext) *ApplyDiffTool {
	return &ApplyDiffTool{tc: tc}
}

func (t *ApplyDiffTool) Name() string { return "apply_diff" }

func (t *ApplyDiffTool) Description() string {
	return "Apply precise search/replace blocks to a file. Each block anchors at a 1-based start line, must match the existing lines exactly (trailing whitespace ignored), and blocks must not overlap."
}

func (t *ApplyDiffTool) Schema() json.RawMessage {
	return agent.MustSchemaFor[ApplyDiffArgs]()
}

func (t *ApplyDiffTool) Execute(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
	var in ApplyDiffArgs
	if err := json.Unmarshal(args, &in); err != nil {
		return models.ToolError(fmt.Sprintf("Error: Invalid arguments: %v", err)), nil
	}

	target, err := t.tc.Resolver().Resolve(in.Path)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: %v", err)), nil
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return models.ToolError(fmt.Sprintf("Error: File not found: %s", in.Path)), nil
	}
	lines := splitKeepEnds(string(data))

	blocks := diffBlockRE.FindAllStringSubmatch(in.Diff, -1)
	if len(blocks) == 0 {
		return models.ToolError("Error: No valid diff blocks found. Check format."), nil
	}

	var reps []replacement
	for _, block := range blocks {
		startLine, _ := strconv.Atoi(block[1])
		startIdx := startLine - 1
		searchContent := block[2]
		replaceContent := block[3]
		// The capture stops before the newline that precedes =======; put
		// the terminator back so joined output stays line-aligned.
		if replaceContent != "" {
			replaceContent += "\n"
		}

		searchLines := splitKeepEnds(searchContent)

		if startIdx < 0 || startIdx >= len(lines) {
			return models.ToolError(fmt.Sprintf("Error: Start line %d out of range", startIdx+1)), nil
		}

		for i, searchLine := range searchLines {
			fileIdx := startIdx + i
			if fileIdx >= len(lines) ||
				strings.TrimRight(lines[fileIdx], "\r\n") != strings.TrimRight(searchLine, "\r\n") {
				return models.ToolError(fmt.Sprintf("Error: Search block mismatch at line %d", startIdx+1)), nil
			}
		}

		reps = append(reps, replacement{
			start:   startIdx,
			end:     startIdx + len(searchLines),
			content: replaceContent,
		})
	}

	sort.Slice(reps, func(i, j int) bool { return reps[i].start < reps[j].start })
	for i := 0; i < len(reps)-1; i++ {
		if reps[i].end > reps[i+1].start {
			return models.ToolError("Error: Diff blocks overlap"), nil
		}
	}

	// Bottom-up so earlier spans keep their line numbers.
	for i := len(reps) - 1; i >= 0; i-- {
		rep := reps[i]
		repLines := splitKeepEnds(rep.content)
		merged := make([]string, 0, len(lines)-(rep.end-rep.start)+len(repLines))
		merged = append(merged, lines[:rep.start]...)
		merged = append(merged, repLines...)
		merged = append(merged, lines[rep.end:]...)
		lines = merged
	}

	if err := os.WriteFile(target, []byte(strings.Join(lines, "")), 0o644); err != nil {
		return models.ToolError(fmt.Sprintf("Failed to apply diff: %v", err)), nil
	}
	return models.ToolSuccess("Successfully applied diff"), nil
}

// splitKeepEnds splits content into lines that keep their trailing newline,
// mirroring how the diff format counts lines.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
	}
	return lines
}

package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/workspace"
	"github.com/ownagent/ownagent/pkg/models"
)

func newTestContext(t *testing.T) *agent.ToolContext {
	t.Helper()
	resolver, err := workspace.NewResolver(t.TempDir())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return agent.NewToolContext(resolver, agent.EnvCLI)
}

func mustWrite(t *testing.T, tc *agent.ToolContext, rel, content string) {
	t.Helper()
	path := filepath.Join(tc.Root(), rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func run(t *testing.T, tool agent.Tool, args string) *models.ToolResult {
	t.Helper()
	result, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("%s: %v", tool.Name(), err)
	}
	return result
}

func TestListTopLevel(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "b.txt", "b")
	mustWrite(t, tc, "a.txt", "a")
	mustWrite(t, tc, "sub/inner.txt", "x")

	result := run(t, NewListTool(tc), `{"path": ".", "recursive": false}`)
	if !result.Success {
		t.Fatalf("list failed: %s", result.Output)
	}
	want := "a.txt\nb.txt\nsub/"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestListRecursive(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "sub/inner.txt", "x")
	mustWrite(t, tc, "top.txt", "y")

	result := run(t, NewListTool(tc), `{"path": ".", "recursive": true}`)
	if !result.Success {
		t.Fatalf("list failed: %s", result.Output)
	}
	want := "sub/\nsub/inner.txt\ntop.txt"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestListMissingPath(t *testing.T) {
	tc := newTestContext(t)
	result := run(t, NewListTool(tc), `{"path": "nope", "recursive": false}`)
	if result.Success {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(result.Output, "Path does not exist") {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestReadNumbersLines(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "main.go", "package main\n\nfunc main() {}\n")

	result := run(t, NewReadTool(tc), `{"files": [{"path": "main.go"}]}`)
	if !result.Success {
		t.Fatalf("read failed: %s", result.Output)
	}
	want := "--- main.go ---\n   1 | package main\n   2 | \n   3 | func main() {}"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestReadLineRanges(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "list.txt", "one\ntwo\nthree\nfour\nfive\n")

	result := run(t, NewReadTool(tc), `{"files": [{"path": "list.txt", "line_ranges": [[2, 3], [5, 9]]}]}`)
	if !result.Success {
		t.Fatalf("read failed: %s", result.Output)
	}
	want := "--- list.txt ---\n   2 | two\n   3 | three\n   5 | five"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestReadMultipleFilesAndInlineErrors(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "a.txt", "alpha\n")

	result := run(t, NewReadTool(tc), `{"files": [{"path": "a.txt"}, {"path": "missing.txt"}]}`)
	if !result.Success {
		t.Fatalf("read failed: %s", result.Output)
	}
	parts := strings.Split(result.Output, "\n\n")
	if len(parts) != 2 {
		t.Fatalf("expected 2 sections, got %d: %q", len(parts), result.Output)
	}
	if !strings.HasPrefix(parts[0], "--- a.txt ---") {
		t.Errorf("first section = %q", parts[0])
	}
	if parts[1] != "Error: File not found: missing.txt" {
		t.Errorf("second section = %q", parts[1])
	}
}

func TestReadRejectsTooManyFiles(t *testing.T) {
	tc := newTestContext(t)
	var items []string
	for i := 0; i < 6; i++ {
		items = append(items, fmt.Sprintf(`{"path": "f%d.txt"}`, i))
	}
	result := run(t, NewReadTool(tc), `{"files": [`+strings.Join(items, ",")+`]}`)
	if result.Success {
		t.Fatalf("expected failure for 6 files")
	}
}

func TestReadRejectsBinary(t *testing.T) {
	tc := newTestContext(t)
	path := filepath.Join(tc.Root(), "blob.bin")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x81}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result := run(t, NewReadTool(tc), `{"files": [{"path": "blob.bin"}]}`)
	if !strings.Contains(result.Output, "Cannot decode file (binary?)") {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestWriteCreatesParents(t *testing.T) {
	tc := newTestContext(t)

	result := run(t, NewWriteTool(tc), `{"path": "deep/nested/file.txt", "content": "hello"}`)
	if !result.Success {
		t.Fatalf("write failed: %s", result.Output)
	}
	if result.Output != "Successfully wrote to: deep/nested/file.txt" {
		t.Errorf("Output = %q", result.Output)
	}
	data, err := os.ReadFile(filepath.Join(tc.Root(), "deep/nested/file.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("content = %q, err = %v", data, err)
	}
}

func TestWriteRejectsEscape(t *testing.T) {
	tc := newTestContext(t)
	result := run(t, NewWriteTool(tc), `{"path": "../outside.txt", "content": "x"}`)
	if result.Success {
		t.Fatalf("expected failure for escaping path")
	}
}

func TestDeleteFileAndDirectory(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "gone.txt", "x")
	mustWrite(t, tc, "dir/a.txt", "x")
	mustWrite(t, tc, "dir/sub/b.txt", "x")

	result := run(t, NewDeleteTool(tc), `{"path": "gone.txt"}`)
	if result.Output != "Successfully deleted file: gone.txt" {
		t.Errorf("Output = %q", result.Output)
	}

	result = run(t, NewDeleteTool(tc), `{"path": "dir"}`)
	if result.Output != "Successfully deleted directory: dir" {
		t.Errorf("Output = %q", result.Output)
	}
	if _, err := os.Stat(filepath.Join(tc.Root(), "dir")); !os.IsNotExist(err) {
		t.Errorf("directory still present")
	}

	result = run(t, NewDeleteTool(tc), `{"path": "gone.txt"}`)
	if result.Success {
		t.Errorf("expected failure for missing path")
	}
}

func TestSearchMatchesWithPattern(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "src/a.go", "package a\nfunc Hello() {}\n")
	mustWrite(t, tc, "src/b.txt", "func Hello in prose\n")

	result := run(t, NewSearchTool(tc), `{"path": "src", "regex": "func \\w+", "file_pattern": "*.go"}`)
	if !result.Success {
		t.Fatalf("search failed: %s", result.Output)
	}
	want := "src/a.go:2: func Hello() {}"
	if result.Output != want {
		t.Errorf("Output = %q, want %q", result.Output, want)
	}
}

func TestSearchNoMatches(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "a.txt", "nothing here\n")

	result := run(t, NewSearchTool(tc), `{"path": ".", "regex": "absent_token"}`)
	if result.Output != "No matches found." {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestSearchInvalidRegex(t *testing.T) {
	tc := newTestContext(t)
	result := run(t, NewSearchTool(tc), `{"path": ".", "regex": "("}`)
	if result.Success || !strings.Contains(result.Output, "Invalid regex") {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditReplacesOnce(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "main.py", "print('hello')\n")

	result := run(t, NewEditTool(tc),
		`{"file_path": "main.py", "old_string": "print('hello')", "new_string": "print('world')"}`)
	if result.Output != "Successfully replaced 1 occurrence(s)." {
		t.Errorf("Output = %q", result.Output)
	}
	data, _ := os.ReadFile(filepath.Join(tc.Root(), "main.py"))
	if string(data) != "print('world')\n" {
		t.Errorf("content = %q", data)
	}
}

func TestEditCountMismatch(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "dup.txt", "x\nx\nx\n")

	result := run(t, NewEditTool(tc), `{"file_path": "dup.txt", "old_string": "x", "new_string": "y"}`)
	if result.Success {
		t.Fatalf("expected failure")
	}
	if result.Output != "Error: Expected 1 replacements, found 3. Please provide more context." {
		t.Errorf("Output = %q", result.Output)
	}

	result = run(t, NewEditTool(tc),
		`{"file_path": "dup.txt", "old_string": "x", "new_string": "y", "expected_replacements": 3}`)
	if result.Output != "Successfully replaced 3 occurrence(s)." {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditNotFoundStrings(t *testing.T) {
	tc := newTestContext(t)
	mustWrite(t, tc, "a.txt", "alpha\n")

	result := run(t, NewEditTool(tc), `{"file_path": "a.txt", "old_string": "beta", "new_string": "x"}`)
	if result.Output != "Error: 'old_string' not found in file." {
		t.Errorf("Output = %q", result.Output)
	}

	result = run(t, NewEditTool(tc), `{"file_path": "nope.txt", "old_string": "a", "new_string": "b"}`)
	if result.Output != "Error: File not found: nope.txt" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestEditCreatesNewFile(t *testing.T) {
	tc := newTestContext(t)

	result := run(t, NewEditTool(tc),
		`{"file_path": "pkg/new.go", "old_string": "", "new_string": "package pkg\n"}`)
	if result.Output != "Successfully created file: pkg/new.go" {
		t.Errorf("Output = %q", result.Output)
	}

	result = run(t, NewEditTool(tc),
		`{"file_path": "pkg/new.go", "old_string": "", "new_string": "again"}`)
	if result.Success {
		t.Fatalf("expected failure creating over an existing file")
	}
	if result.Output != "Error: File already exists, cannot create: pkg/new.go" {
		t.Errorf("Output = %q", result.Output)
	}
}

func TestToolsCatalogue(t *testing.T) {
	tc := newTestContext(t)
	tools := Tools(tc)
	want := []string{"list_files", "read_file", "write_to_file", "delete_file", "search_files", "edit_file", "apply_diff"}
	if len(tools) != len(want) {
		t.Fatalf("len = %d, want %d", len(tools), len(want))
	}
	for i, tool := range tools {
		if tool.Name() != want[i] {
			t.Errorf("tools[%d] = %q, want %q", i, tool.Name(), want[i])
		}
		if len(tool.Schema()) == 0 {
			t.Errorf("%s: empty schema", tool.Name())
		}
		if tool.Description() == "" {
			t.Errorf("%s: empty description", tool.Name())
		}
	}
}

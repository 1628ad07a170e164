package agent

import (
	"encoding/json"
	"reflect"
	"testing"
)

func mustParseAny(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("result %q is not valid JSON: %v", s, err)
	}
	return v
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"well formed", `{"path": "a.txt"}`, map[string]any{"path": "a.txt"}},
		{"surrounding whitespace", "  \n {\"path\": \"a.txt\"} \n", map[string]any{"path": "a.txt"}},
		{"empty input", "", map[string]any{}},
		{"whitespace only", "   \n\t ", map[string]any{}},
		{"truncated string value", `{"path":"a.txt`, map[string]any{"path": "a.txt"}},
		{"missing closing brace", `{"path":"a.txt"`, map[string]any{"path": "a.txt"}},
		{"truncated top-level array", `["a","b`, []any{"a", "b"}},
		{"unclosed top-level array", `["a","b"`, []any{"a", "b"}},
		{
			"fenced json",
			"```json\n{\"path\": \"a.txt\"}\n```",
			map[string]any{"path": "a.txt"},
		},
		{
			"fenced without language",
			"```\n{\"recursive\": true}\n```",
			map[string]any{"recursive": true},
		},
		{
			"fenced and truncated",
			"```json\n{\"path\":\"a.txt\n```",
			map[string]any{"path": "a.txt"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repairJSON(tt.in)
			if err != nil {
				t.Fatalf("repairJSON(%q) error: %v", tt.in, err)
			}
			if parsed := mustParseAny(t, got); !reflect.DeepEqual(parsed, tt.want) {
				t.Errorf("repairJSON(%q) = %v, want %v", tt.in, parsed, tt.want)
			}
		})
	}
}

func TestRepairJSONUnrepairable(t *testing.T) {
	_, err := repairJSON(`{"path": a.txt whatever`)
	if err == nil {
		t.Fatalf("expected parse error for unrepairable input")
	}
}

func TestRepairJSONNonObject(t *testing.T) {
	// Non-object JSON is syntactically fine; schema validation rejects it later.
	got, err := repairJSON(`[1, 2, 3]`)
	if err != nil {
		t.Fatalf("repairJSON: %v", err)
	}
	if got != `[1, 2, 3]` {
		t.Errorf("got %q, want input unchanged", got)
	}
}

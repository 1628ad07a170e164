package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/config"
	"github.com/ownagent/ownagent/pkg/models"
)

// stubProvider satisfies agent.Provider without ever being called; manager
// tests exercise runtime construction and caching, not stepping.
type stubProvider struct{}

func (stubProvider) StreamChat(context.Context, []models.Message, []agent.ToolDefinition) (<-chan agent.StreamDelta, error) {
	ch := make(chan agent.StreamDelta)
	close(ch)
	return ch, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store := newTestStore(t)
	cfg := &config.Config{
		APIKey:      "test-key",
		BaseURL:     "http://localhost:0",
		Model:       "glm4.7",
		Workspace:   t.TempDir(),
		SessionsDir: store.Dir(),
	}
	return NewManager(ManagerConfig{
		Config:   cfg,
		Store:    store,
		Provider: stubProvider{},
	})
}

var sessionIDShape = regexp.MustCompile(`^\d{8}_\d{6}$`)

func TestNewCreatesFileAndMarksActive(t *testing.T) {
	m := newTestManager(t)

	id, err := m.New(context.Background(), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !sessionIDShape.MatchString(id) {
		t.Errorf("session id = %q, want timestamp shape YYYYMMDD_HHMMSS", id)
	}
	if !m.Store().Exists(1, id) {
		t.Error("initial session file was not written")
	}
	active, ok := m.Active(1)
	if !ok || active != id {
		t.Errorf("Active = %q, %v, want %q, true", active, ok, id)
	}

	infos, activeID, err := m.List(1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != id {
		t.Fatalf("List = %+v, want one session %q", infos, id)
	}
	if activeID != id {
		t.Errorf("List active = %q, want %q", activeID, id)
	}
}

func TestGetOrCreateCachesPerPair(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.GetOrCreate(ctx, 1, "abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	again, err := m.GetOrCreate(ctx, 1, "abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first != again {
		t.Error("same pair returned a different runtime")
	}

	other, err := m.GetOrCreate(ctx, 2, "abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if other == first {
		t.Error("different user shares a runtime")
	}

	if _, err := m.GetOrCreate(ctx, 1, "../evil"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("GetOrCreate error = %v, want ErrInvalidSessionID", err)
	}
}

func TestGetOrCreateLoadsExistingHistory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	// Build the session through one runtime, then force a rebuild by
	// deleting only the cache entry.
	rt, err := m.GetOrCreate(ctx, 1, "restore")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	rt.Context().AddUser("remember me")
	m.mu.Lock()
	delete(m.runtimes, runtimeKey(1, "restore"))
	m.mu.Unlock()

	reloaded, err := m.GetOrCreate(ctx, 1, "restore")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if reloaded == rt {
		t.Fatal("expected a freshly built runtime")
	}
	transcript := reloaded.Context().Transcript()
	if len(transcript) != 1 {
		t.Fatalf("len(transcript) = %d, want 1", len(transcript))
	}
	if transcript[0].Content != "remember me" {
		t.Errorf("transcript[0].Content = %q, want %q", transcript[0].Content, "remember me")
	}
}

func TestLoad(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Load(ctx, 1, "../evil"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Load error = %v, want ErrInvalidSessionID", err)
	}
	if _, err := m.Load(ctx, 1, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Load error = %v, want ErrSessionNotFound", err)
	}

	id, err := m.New(ctx, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rt, err := m.GetOrCreate(ctx, 1, id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	rt.Context().AddUser("hello")

	history, err := m.Load(ctx, 1, id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(history) != 1 || history[0].Content != "hello" {
		t.Fatalf("history = %+v, want the user message only", history)
	}
	if active, _ := m.Active(1); active != id {
		t.Errorf("Active = %q, want %q", active, id)
	}
}

func TestDeleteRemovesFileAndRuntime(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.New(ctx, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before, err := m.GetOrCreate(ctx, 1, id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if err := m.Delete(1, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Store().Exists(1, id) {
		t.Error("session file still exists after Delete")
	}
	if _, ok := m.Active(1); ok {
		t.Error("active session not cleared by Delete")
	}

	after, err := m.GetOrCreate(ctx, 1, id)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if after == before {
		t.Error("runtime cache entry survived Delete")
	}

	if err := m.Delete(1, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Delete error = %v, want ErrSessionNotFound", err)
	}
	if err := m.Delete(1, "../evil"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Delete error = %v, want ErrInvalidSessionID", err)
	}
}

func TestResolve(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	t.Run("explicit id wins", func(t *testing.T) {
		id, rt, err := m.Resolve(ctx, 1, "explicit")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if id != "explicit" || rt == nil {
			t.Fatalf("Resolve = %q, runtime nil=%v; want explicit id and a runtime", id, rt == nil)
		}
		// An explicit id does not displace the active session.
		if _, ok := m.Active(1); ok {
			t.Error("explicit Resolve set an active session")
		}
	})

	t.Run("no active session creates one", func(t *testing.T) {
		id, _, err := m.Resolve(ctx, 2, "")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !sessionIDShape.MatchString(id) {
			t.Errorf("session id = %q, want timestamp shape", id)
		}
		if active, _ := m.Active(2); active != id {
			t.Errorf("Active = %q, want %q", active, id)
		}
	})

	t.Run("active session reused", func(t *testing.T) {
		created, err := m.New(ctx, 3)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		id, _, err := m.Resolve(ctx, 3, "")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if id != created {
			t.Errorf("Resolve = %q, want active session %q", id, created)
		}
	})
}

func TestCloseDrainsRuntimeCache(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	before, err := m.GetOrCreate(ctx, 1, "abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	after, err := m.GetOrCreate(ctx, 1, "abc")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if after == before {
		t.Error("runtime cache survived Close")
	}
}

func TestBuildRuntimeRegistersBuiltinTools(t *testing.T) {
	m := newTestManager(t)

	rt, err := m.GetOrCreate(context.Background(), 1, "catalogue")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	defs := rt.Registry().Definitions()
	names := make(map[string]bool, len(defs))
	for _, def := range defs {
		names[def.Function.Name] = true
	}
	for _, want := range []string{
		"list_files", "read_file", "write_to_file", "delete_file",
		"search_files", "edit_file", "apply_diff",
		"execute_command", "browser_action",
		"read_todo", "write_todo", "update_todo",
		"ask_followup_question", "attempt_completion", "new_task",
		"switch_mode", "update_todo_list", "fetch_instructions",
		"list_skills", "search_skills", "get_skill",
	} {
		if !names[want] {
			t.Errorf("tool %q not registered", want)
		}
	}
	if len(defs) != 21 {
		t.Errorf("len(defs) = %d, want 21", len(defs))
	}
}

func TestManagerSurvivesMissingWorkspace(t *testing.T) {
	store := newTestStore(t)
	cfg := &config.Config{
		APIKey:      "test-key",
		BaseURL:     "http://localhost:0",
		Model:       "glm4.7",
		Workspace:   "/nonexistent/workspace/path",
		SessionsDir: store.Dir(),
	}
	m := NewManager(ManagerConfig{Config: cfg, Store: store, Provider: stubProvider{}})

	if _, err := m.GetOrCreate(context.Background(), 1, "abc"); err == nil {
		t.Fatal("expected an error for a missing workspace root")
	}
}

func TestTraceDirGetsPerRuntimeLog(t *testing.T) {
	store := newTestStore(t)
	traceDir := filepath.Join(t.TempDir(), "logs")
	cfg := &config.Config{
		APIKey:      "test-key",
		BaseURL:     "http://localhost:0",
		Model:       "glm4.7",
		Workspace:   t.TempDir(),
		SessionsDir: store.Dir(),
	}
	m := NewManager(ManagerConfig{
		Config:   cfg,
		Store:    store,
		Provider: stubProvider{},
		TraceDir: traceDir,
	})

	rt, err := m.GetOrCreate(context.Background(), 3, "20250101_120000")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	tracePath := filepath.Join(traceDir, "trace_3_20250101_120000.jsonl")
	if _, err := os.Stat(tracePath); err != nil {
		t.Fatalf("trace file: %v", err)
	}

	// The header appears once the first event is recorded.
	rt.Step(context.Background(), "ping", nil)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(tracePath)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		t.Fatalf("trace lines = %d, want header plus events", len(lines))
	}
	var header struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
		t.Fatalf("unmarshal header %q: %v", lines[0], err)
	}
	if header.RunID != "3:20250101_120000" {
		t.Errorf("run id = %q, want %q", header.RunID, "3:20250101_120000")
	}
}

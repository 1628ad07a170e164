package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/auth"
	"github.com/ownagent/ownagent/internal/config"
	"github.com/ownagent/ownagent/internal/sessions"
	"github.com/ownagent/ownagent/pkg/models"
)

// scriptedProvider replays one canned stream per call. Calls beyond the
// script return an empty stream, which the runtime reports as an error
// event.
type scriptedProvider struct {
	turns [][]agent.StreamDelta
	calls int
}

func (p *scriptedProvider) StreamChat(context.Context, []models.Message, []agent.ToolDefinition) (<-chan agent.StreamDelta, error) {
	var turn []agent.StreamDelta
	if p.calls < len(p.turns) {
		turn = p.turns[p.calls]
	}
	p.calls++
	ch := make(chan agent.StreamDelta, len(turn))
	for _, d := range turn {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func newTestServer(t *testing.T, provider agent.Provider, authSvc *auth.Service) *Server {
	t.Helper()
	store, err := sessions.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	manager := sessions.NewManager(sessions.ManagerConfig{
		Config: &config.Config{
			APIKey:      "test-key",
			Model:       "glm4.7",
			Workspace:   t.TempDir(),
			SessionsDir: store.Dir(),
		},
		Store:    store,
		Provider: provider,
	})
	t.Cleanup(func() { _ = manager.Close() })
	if authSvc == nil {
		authSvc = auth.NewService(auth.Config{})
	}
	return NewServer(Config{Manager: manager, Auth: authSvc})
}

// newAuthedServer builds a server with token auth enforced and two known
// users.
func newAuthedServer(t *testing.T) (*Server, adminTokens) {
	t.Helper()
	store, err := auth.OpenStore(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc := auth.NewService(auth.Config{Secret: "gateway-test-secret", Store: store})

	ctx := context.Background()
	admin, err := store.CreateUser(ctx, "alice", "", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser admin: %v", err)
	}
	regular, err := store.CreateUser(ctx, "bob", "", auth.RoleUser)
	if err != nil {
		t.Fatalf("CreateUser user: %v", err)
	}
	adminToken, err := svc.GenerateToken(ctx, admin)
	if err != nil {
		t.Fatalf("GenerateToken admin: %v", err)
	}
	userToken, err := svc.GenerateToken(ctx, regular)
	if err != nil {
		t.Fatalf("GenerateToken user: %v", err)
	}
	return newTestServer(t, &scriptedProvider{}, svc), adminTokens{admin: adminToken, user: userToken}
}

type adminTokens struct {
	admin string
	user  string
}

func doRequest(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func parseFrames(t *testing.T, body string) []models.AgentEvent {
	t.Helper()
	var events []models.AgentEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame %q does not start with data prefix", block)
		}
		var ev models.AgentEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev); err != nil {
			t.Fatalf("unmarshal frame %q: %v", block, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", got, `{"status":"ok"}`)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

func TestIndexPage(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)

	rec := doRequest(t, s.Handler(), http.MethodGet, "/", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "<title>ownagent</title>") {
		t.Error("index page missing title")
	}

	// The root pattern must not swallow unknown paths.
	rec = doRequest(t, s.Handler(), http.MethodGet, "/definitely-not-here", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)
	rec := doRequest(t, s.Handler(), http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)
	h := s.Handler()

	var listing struct {
		Sessions         []sessions.Info `json:"sessions"`
		CurrentSessionID *string         `json:"current_session_id"`
	}
	rec := doRequest(t, h, http.MethodGet, "/sessions", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rec.Code, http.StatusOK)
	}
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 0 || listing.CurrentSessionID != nil {
		t.Fatalf("fresh listing = %+v, want empty", listing)
	}

	var created struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	rec = doRequest(t, h, http.MethodPost, "/sessions/new", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("new status = %d, want %d", rec.Code, http.StatusOK)
	}
	decodeBody(t, rec, &created)
	if !regexp.MustCompile(`^\d{8}_\d{6}$`).MatchString(created.ID) {
		t.Errorf("session id = %q, want timestamp shape", created.ID)
	}
	if created.Message != "New session started" {
		t.Errorf("message = %q, want %q", created.Message, "New session started")
	}

	rec = doRequest(t, h, http.MethodGet, "/sessions", "", "")
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 1 || listing.Sessions[0].ID != created.ID {
		t.Fatalf("listing after create = %+v, want one session %q", listing.Sessions, created.ID)
	}
	if listing.CurrentSessionID == nil || *listing.CurrentSessionID != created.ID {
		t.Errorf("current_session_id = %v, want %q", listing.CurrentSessionID, created.ID)
	}

	var loaded struct {
		ID      string           `json:"id"`
		History []models.Message `json:"history"`
	}
	rec = doRequest(t, h, http.MethodPost, "/sessions/"+created.ID+"/load", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, want %d", rec.Code, http.StatusOK)
	}
	decodeBody(t, rec, &loaded)
	if loaded.ID != created.ID {
		t.Errorf("loaded id = %q, want %q", loaded.ID, created.ID)
	}
	if loaded.History == nil || len(loaded.History) != 0 {
		t.Errorf("history = %v, want empty non-null array", loaded.History)
	}

	rec = doRequest(t, h, http.MethodDelete, "/sessions/"+created.ID, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusOK)
	}
	rec = doRequest(t, h, http.MethodGet, "/sessions", "", "")
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 0 {
		t.Errorf("listing after delete = %+v, want empty", listing.Sessions)
	}
}

func TestSessionErrorStatuses(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)
	h := s.Handler()

	cases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"load invalid id", http.MethodPost, "/sessions/..%2Fevil/load", http.StatusBadRequest},
		{"load missing session", http.MethodPost, "/sessions/20990101_000000/load", http.StatusNotFound},
		{"delete invalid id", http.MethodDelete, "/sessions/bad!id", http.StatusBadRequest},
		{"delete missing session", http.MethodDelete, "/sessions/20990101_000000", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, tc.method, tc.path, "", "")
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, &scriptedProvider{}, nil)
	h := s.Handler()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"message": `},
		{"empty message", `{"message": "   "}`},
		{"invalid session id", `{"message": "hi", "session_id": "../etc/passwd"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/chat", "", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}

func TestChatStreamsEvents(t *testing.T) {
	provider := &scriptedProvider{turns: [][]agent.StreamDelta{
		{{Content: "Hello"}, {Content: " there"}},
	}}
	s := newTestServer(t, provider, nil)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodPost, "/chat", "", `{"message": "hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if !rec.Flushed {
		t.Error("stream was never flushed")
	}

	events := parseFrames(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no events streamed")
	}
	var content strings.Builder
	for _, ev := range events {
		if ev.Type == models.EventContentDelta {
			content.WriteString(ev.Content.(string))
		}
	}
	if got := content.String(); got != "Hello there" {
		t.Errorf("streamed content = %q, want %q", got, "Hello there")
	}
	last := events[len(events)-1]
	if last.Type != models.EventFinished {
		t.Errorf("last event type = %q, want %q", last.Type, models.EventFinished)
	}

	// The turn must be auto-saved under the auto-created session.
	var listing struct {
		Sessions         []sessions.Info `json:"sessions"`
		CurrentSessionID *string         `json:"current_session_id"`
	}
	rec = doRequest(t, h, http.MethodGet, "/sessions", "", "")
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 1 {
		t.Fatalf("sessions after chat = %d, want 1", len(listing.Sessions))
	}
	if listing.CurrentSessionID == nil || *listing.CurrentSessionID != listing.Sessions[0].ID {
		t.Errorf("current_session_id = %v, want %q", listing.CurrentSessionID, listing.Sessions[0].ID)
	}

	var loaded struct {
		History []models.Message `json:"history"`
	}
	rec = doRequest(t, h, http.MethodPost, "/sessions/"+listing.Sessions[0].ID+"/load", "", "")
	decodeBody(t, rec, &loaded)
	if len(loaded.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(loaded.History))
	}
	if loaded.History[0].Role != models.RoleUser || loaded.History[0].Content != "hi" {
		t.Errorf("history[0] = %+v, want user %q", loaded.History[0], "hi")
	}
	if loaded.History[1].Role != models.RoleAssistant || loaded.History[1].Content != "Hello there" {
		t.Errorf("history[1] = %+v, want assistant %q", loaded.History[1], "Hello there")
	}
}

func TestChatReusesExplicitSession(t *testing.T) {
	provider := &scriptedProvider{turns: [][]agent.StreamDelta{
		{{Content: "first"}},
		{{Content: "second"}},
	}}
	s := newTestServer(t, provider, nil)
	h := s.Handler()

	var created struct {
		ID string `json:"id"`
	}
	rec := doRequest(t, h, http.MethodPost, "/sessions/new", "", "")
	decodeBody(t, rec, &created)

	body := fmt.Sprintf(`{"message": "one", "session_id": %q}`, created.ID)
	if rec = doRequest(t, h, http.MethodPost, "/chat", "", body); rec.Code != http.StatusOK {
		t.Fatalf("first chat status = %d (body %s)", rec.Code, rec.Body.String())
	}
	body = fmt.Sprintf(`{"message": "two", "session_id": %q}`, created.ID)
	if rec = doRequest(t, h, http.MethodPost, "/chat", "", body); rec.Code != http.StatusOK {
		t.Fatalf("second chat status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var loaded struct {
		History []models.Message `json:"history"`
	}
	rec = doRequest(t, h, http.MethodPost, "/sessions/"+created.ID+"/load", "", "")
	decodeBody(t, rec, &loaded)
	if len(loaded.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(loaded.History))
	}

	var listing struct {
		Sessions []sessions.Info `json:"sessions"`
	}
	rec = doRequest(t, h, http.MethodGet, "/sessions", "", "")
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(listing.Sessions))
	}
}

// TestChatStreamingOverHTTP runs the chat through a real server to confirm
// frames arrive incrementally, not as one buffered body.
func TestChatStreamingOverHTTP(t *testing.T) {
	provider := &scriptedProvider{turns: [][]agent.StreamDelta{
		{{Content: "stream"}, {Content: "ing"}},
	}}
	s := newTestServer(t, provider, nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/chat", "application/json", strings.NewReader(`{"message": "go"}`))
	if err != nil {
		t.Fatalf("POST /chat: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	scanner := bufio.NewScanner(resp.Body)
	var frames []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if len(frames) < 2 {
		t.Fatalf("frames = %d, want at least 2", len(frames))
	}
	var last models.AgentEvent
	if err := json.Unmarshal([]byte(frames[len(frames)-1]), &last); err != nil {
		t.Fatalf("unmarshal last frame: %v", err)
	}
	if last.Type != models.EventFinished {
		t.Errorf("last frame type = %q, want %q", last.Type, models.EventFinished)
	}
}

func TestAuthRequired(t *testing.T) {
	s, tokens := newAuthedServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodGet, "/sessions", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"unauthorized"}` {
		t.Errorf("body = %q, want %q", got, `{"error":"unauthorized"}`)
	}

	rec = doRequest(t, h, http.MethodGet, "/sessions", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doRequest(t, h, http.MethodGet, "/sessions", tokens.user, "")
	if rec.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	// Health and metrics stay open.
	if rec = doRequest(t, h, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestSessionsIsolatedPerUser(t *testing.T) {
	s, tokens := newAuthedServer(t)
	h := s.Handler()

	var created struct {
		ID string `json:"id"`
	}
	rec := doRequest(t, h, http.MethodPost, "/sessions/new", tokens.admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("new status = %d (body %s)", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &created)

	// The other user cannot see or load it.
	var listing struct {
		Sessions []sessions.Info `json:"sessions"`
	}
	rec = doRequest(t, h, http.MethodGet, "/sessions", tokens.user, "")
	decodeBody(t, rec, &listing)
	if len(listing.Sessions) != 0 {
		t.Errorf("other user sees %d sessions, want 0", len(listing.Sessions))
	}
	rec = doRequest(t, h, http.MethodPost, "/sessions/"+created.ID+"/load", tokens.user, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user load status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAdminUsersEndpoint(t *testing.T) {
	s, tokens := newAuthedServer(t)
	h := s.Handler()

	rec := doRequest(t, h, http.MethodGet, "/auth/users", tokens.admin, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	var users []auth.User
	decodeBody(t, rec, &users)
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}

	rec = doRequest(t, h, http.MethodGet, "/auth/users", tokens.user, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = doRequest(t, h, http.MethodGet, "/auth/users", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	// Without a user store the route is not mounted at all.
	open := newTestServer(t, &scriptedProvider{}, nil)
	rec = doRequest(t, open.Handler(), http.MethodGet, "/auth/users", "", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("storeless status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestMetricPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/chat", "/chat"},
		{"/sessions", "/sessions"},
		{"/sessions/new", "/sessions/new"},
		{"/sessions/20250101_120000", "/sessions/{id}"},
		{"/sessions/20250101_120000/load", "/sessions/{id}/load"},
	}
	for _, tc := range cases {
		if got := metricPath(tc.in); got != tc.want {
			t.Errorf("metricPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

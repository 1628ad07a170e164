package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/agent/providers"
	"github.com/ownagent/ownagent/internal/config"
	"github.com/ownagent/ownagent/internal/mcp"
	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/internal/skills"
	"github.com/ownagent/ownagent/internal/tools/browser"
	"github.com/ownagent/ownagent/internal/tools/exec"
	"github.com/ownagent/ownagent/internal/tools/files"
	"github.com/ownagent/ownagent/internal/tools/interaction"
	"github.com/ownagent/ownagent/internal/tools/todo"
	"github.com/ownagent/ownagent/internal/workspace"
	"github.com/ownagent/ownagent/pkg/models"
)

// idFormat renders new session IDs as second-resolution timestamps.
const idFormat = "20060102_150405"

// ManagerConfig wires the collaborators shared by every runtime the manager
// builds.
type ManagerConfig struct {
	Config *config.Config
	Store  *Store
	Skills *skills.Catalogue
	Logger *slog.Logger
	// Provider overrides the OpenAI transport for every runtime. Tests use
	// it to substitute a scripted provider; nil selects the real one.
	Provider agent.Provider
	Metrics  *observability.Metrics
	// TraceDir, when set, gives every runtime a JSONL event log named after
	// its (user, session) pair. Rebuilding a runtime truncates its trace.
	TraceDir string
}

// Manager resolves (user, session) pairs to live runtimes, building one on
// first use. Each runtime gets its own registry, tool context, context
// manager, and MCP clients; the cache and the per-user active-session
// pointers are guarded by a single mutex.
type Manager struct {
	cfg      *config.Config
	store    *Store
	skills   *skills.Catalogue
	logger   *slog.Logger
	provider agent.Provider
	metrics  *observability.Metrics
	traceDir string

	mu       sync.Mutex
	runtimes map[string]*entry
	active   map[int64]string
}

type entry struct {
	runtime *agent.Runtime
	mcp     []*mcp.Client
	trace   *agent.EventLog
}

func (e *entry) close(logger *slog.Logger) {
	if err := e.runtime.Close(); err != nil {
		logger.Warn("runtime close failed", "error", err)
	}
	for _, client := range e.mcp {
		if err := client.Close(); err != nil {
			logger.Warn("mcp client close failed", "server", client.Name(), "error", err)
		}
	}
	if e.trace != nil {
		if err := e.trace.Close(); err != nil {
			logger.Warn("trace close failed", "error", err)
		}
	}
}

// NewManager builds a manager. Config and Store are required.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg.Config,
		store:    cfg.Store,
		skills:   cfg.Skills,
		logger:   logger,
		provider: cfg.Provider,
		metrics:  cfg.Metrics,
		traceDir: cfg.TraceDir,
		runtimes: make(map[string]*entry),
		active:   make(map[int64]string),
	}
}

// Store returns the file store backing the manager.
func (m *Manager) Store() *Store {
	return m.store
}

func runtimeKey(userID int64, sessionID string) string {
	return fmt.Sprintf("%d:%s", userID, sessionID)
}

// GetOrCreate returns the cached runtime for the pair, building and caching
// a fresh one when absent. A session file already on disk is loaded into
// the fresh runtime before it is returned.
func (m *Manager) GetOrCreate(ctx context.Context, userID int64, sessionID string) (*agent.Runtime, error) {
	path, err := m.store.Path(userID, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := runtimeKey(userID, sessionID)
	if ent, ok := m.runtimes[key]; ok {
		return ent.runtime, nil
	}

	ent, err := m.buildRuntime(ctx, userID, sessionID, path)
	if err != nil {
		return nil, err
	}
	m.runtimes[key] = ent
	m.metrics.RuntimeStarted()
	m.logger.Info("runtime created", "user_id", userID, "session_id", sessionID)
	return ent.runtime, nil
}

// buildRuntime assembles one web runtime: path guard, full builtin tool set,
// MCP clients from the workspace config, and a context manager autosaving to
// the session file.
func (m *Manager) buildRuntime(ctx context.Context, userID int64, sessionID, sessionPath string) (*entry, error) {
	resolver, err := workspace.NewResolver(m.cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("workspace resolver: %w", err)
	}
	tc := agent.NewToolContext(resolver, agent.EnvWeb)

	registry := agent.NewRegistry(m.logger, m.metrics)
	for _, tool := range files.Tools(tc) {
		registry.Register(tool)
	}
	for _, tool := range exec.Tools(tc) {
		registry.Register(tool)
	}
	for _, tool := range todo.Tools(tc) {
		registry.Register(tool)
	}
	for _, tool := range interaction.Tools(tc) {
		registry.Register(tool)
	}
	for _, tool := range browser.Tools(tc) {
		registry.Register(tool)
	}
	for _, tool := range skills.Tools(m.skills) {
		registry.Register(tool)
	}

	clients := mcp.ConnectServers(ctx, filepath.Join(m.cfg.Workspace, "mcp_config.json"), registry, m.logger)

	// A typed nil catalogue must not reach the interface-valued parameter.
	var skillsCat agent.SkillsCatalogue
	if m.skills != nil {
		skillsCat = m.skills
	}
	cm := agent.NewContextManager(m.cfg.Workspace, skillsCat, m.logger)
	if _, statErr := os.Stat(sessionPath); statErr == nil {
		if err := cm.Load(sessionPath); err != nil {
			m.logger.Warn("session load failed, starting fresh", "path", sessionPath, "error", err)
		}
	}
	cm.SetAutosave(sessionPath)

	provider := m.provider
	if provider == nil {
		provider = providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:  m.cfg.APIKey,
			BaseURL: m.cfg.BaseURL,
			Model:   m.cfg.Model,
			Logger:  m.logger,
			Metrics: m.metrics,
		})
	}

	// Trace creation is best effort; a failed sink must not block the
	// session.
	var trace *agent.EventLog
	if m.traceDir != "" {
		if err := os.MkdirAll(m.traceDir, 0o755); err != nil {
			m.logger.Warn("trace dir create failed", "dir", m.traceDir, "error", err)
		} else {
			name := fmt.Sprintf("trace_%d_%s.jsonl", userID, sessionID)
			trace, err = agent.NewEventLogFile(filepath.Join(m.traceDir, name), runtimeKey(userID, sessionID))
			if err != nil {
				m.logger.Warn("trace create failed", "name", name, "error", err)
				trace = nil
			}
		}
	}

	rt := agent.NewRuntime(agent.RuntimeConfig{
		Provider: provider,
		Registry: registry,
		Context:  cm,
		Tools:    tc,
		Logger:   m.logger,
		Metrics:  m.metrics,
		Trace:    trace,
	})
	return &entry{runtime: rt, mcp: clients, trace: trace}, nil
}

// New creates a fresh session for the user, writes its initial file, and
// marks it the user's active session.
func (m *Manager) New(ctx context.Context, userID int64) (string, error) {
	sessionID := time.Now().Format(idFormat)
	rt, err := m.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	rt.Context().Reset()

	path, err := m.store.Path(userID, sessionID)
	if err != nil {
		return "", err
	}
	if err := rt.Context().Save(path); err != nil {
		return "", fmt.Errorf("write initial session file: %w", err)
	}
	m.setActive(userID, sessionID)
	return sessionID, nil
}

// List returns the user's stored sessions, newest first, plus the active
// session ID when one is set.
func (m *Manager) List(userID int64) ([]Info, string, error) {
	infos, err := m.store.List(userID)
	if err != nil {
		return nil, "", err
	}
	active, _ := m.Active(userID)
	return infos, active, nil
}

// Load materialises the stored session, marks it active, and returns its
// transcript without the system prompt.
func (m *Manager) Load(ctx context.Context, userID int64, sessionID string) ([]models.Message, error) {
	if !ValidID(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	if !m.store.Exists(userID, sessionID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	rt, err := m.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	m.setActive(userID, sessionID)
	return rt.Context().Transcript(), nil
}

// Delete removes the session file and tears down any cached runtime for the
// pair. A runtime orphaned by an externally removed file is still torn down.
func (m *Manager) Delete(userID int64, sessionID string) error {
	if !ValidID(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	m.mu.Lock()
	key := runtimeKey(userID, sessionID)
	ent := m.runtimes[key]
	delete(m.runtimes, key)
	if m.active[userID] == sessionID {
		delete(m.active, userID)
	}
	m.mu.Unlock()

	if ent != nil {
		ent.close(m.logger)
		m.metrics.RuntimeStopped()
	}
	return m.store.Delete(userID, sessionID)
}

// Resolve picks the session a chat message runs in: the explicit ID when
// given, else the user's active session, else a fresh one that becomes
// active. The runtime is materialised either way.
func (m *Manager) Resolve(ctx context.Context, userID int64, sessionID string) (string, *agent.Runtime, error) {
	if sessionID == "" {
		if active, ok := m.Active(userID); ok {
			sessionID = active
		} else {
			sessionID = time.Now().Format(idFormat)
			m.setActive(userID, sessionID)
		}
	}
	rt, err := m.GetOrCreate(ctx, userID, sessionID)
	if err != nil {
		return "", nil, err
	}
	return sessionID, rt, nil
}

// Active returns the user's active session ID, if any.
func (m *Manager) Active(userID int64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[userID]
	return id, ok
}

func (m *Manager) setActive(userID int64, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[userID] = sessionID
}

// Close tears down every cached runtime and its MCP clients.
func (m *Manager) Close() error {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.runtimes))
	for _, ent := range m.runtimes {
		entries = append(entries, ent)
	}
	m.runtimes = make(map[string]*entry)
	m.active = make(map[int64]string)
	m.mu.Unlock()

	for _, ent := range entries {
		ent.close(m.logger)
		m.metrics.RuntimeStopped()
	}
	return nil
}

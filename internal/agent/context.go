package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ownagent/ownagent/pkg/models"
)

// SkillsCatalogue supplies the one-line-per-skill summary embedded in the
// system prompt. A nil catalogue leaves the skills section out.
type SkillsCatalogue interface {
	Summary() string
}

// ContextManager owns the conversation history for one session. Index 0 is
// always the system prompt; user, assistant, and tool messages follow in
// order. Every mutation persists the history when an autosave path is set;
// autosave failures are logged and never interrupt the turn.
type ContextManager struct {
	mu        sync.Mutex
	workspace string
	skills    SkillsCatalogue
	history   []models.Message
	savePath  string
	logger    *slog.Logger
}

// NewContextManager builds a manager whose history starts with a freshly
// rendered system prompt for the given workspace.
func NewContextManager(workspace string, skills SkillsCatalogue, logger *slog.Logger) *ContextManager {
	if logger == nil {
		logger = slog.Default()
	}
	cm := &ContextManager{workspace: workspace, skills: skills, logger: logger}
	cm.history = []models.Message{cm.systemMessage()}
	return cm
}

func (cm *ContextManager) systemMessage() models.Message {
	summary := ""
	if cm.skills != nil {
		summary = cm.skills.Summary()
	}
	return models.SystemMessage(BuildSystemPrompt(cm.workspace, summary))
}

// SetAutosave enables persistence to path after every mutation. An empty
// path disables autosave.
func (cm *ContextManager) SetAutosave(path string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.savePath = path
}

// AddUser appends a user message.
func (cm *ContextManager) AddUser(content string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history = append(cm.history, models.UserMessage(content))
	cm.autosave()
}

// AddAssistant appends an assistant message as assembled from the stream,
// including reasoning and tool calls.
func (cm *ContextManager) AddAssistant(msg models.Message) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	msg.Role = models.RoleAssistant
	cm.history = append(cm.history, msg)
	cm.autosave()
}

// AddToolOutput appends the tool response answering the assistant tool call
// identified by callID.
func (cm *ContextManager) AddToolOutput(callID, content string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history = append(cm.history, models.ToolMessage(callID, content))
	cm.autosave()
}

// History returns a copy of the full history, system prompt included.
func (cm *ContextManager) History() []models.Message {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make([]models.Message, len(cm.history))
	copy(out, cm.history)
	return out
}

// Transcript returns a copy of the history without the system prompt. This
// is the shape clients render.
func (cm *ContextManager) Transcript() []models.Message {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if len(cm.history) <= 1 {
		return []models.Message{}
	}
	out := make([]models.Message, len(cm.history)-1)
	copy(out, cm.history[1:])
	return out
}

// Len reports the number of messages, system prompt included.
func (cm *ContextManager) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.history)
}

// Reset discards the conversation and rebuilds the system prompt so a new
// task picks up the current workspace and skill set.
func (cm *ContextManager) Reset() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history = []models.Message{cm.systemMessage()}
	cm.autosave()
}

// Save writes the full history to path as indented JSON. Parent directories
// are created as needed.
func (cm *ContextManager) Save(path string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.saveLocked(path)
}

func (cm *ContextManager) saveLocked(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cm.history); err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load replaces the conversation with the messages stored at path. The
// resident system prompt is kept and any leading system message in the file
// is skipped, so a session saved under an older prompt picks up the current
// one.
func (cm *ContextManager) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}
	var stored []models.Message
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode session file: %w", err)
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history = cm.history[:1]
	for i, msg := range stored {
		if i == 0 && msg.Role == models.RoleSystem {
			continue
		}
		cm.history = append(cm.history, msg)
	}
	cm.autosave()
	return nil
}

func (cm *ContextManager) autosave() {
	if cm.savePath == "" {
		return
	}
	if err := cm.saveLocked(cm.savePath); err != nil {
		cm.logger.Warn("session autosave failed", "path", cm.savePath, "error", err)
	}
}

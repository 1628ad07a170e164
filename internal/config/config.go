// Package config loads runtime configuration from the environment and the
// optional mcp_config.json file at the workspace root.
package config

import (
	"fmt"
	"os"
)

// DefaultModel is used when OPENAI_MODEL is not set.
const DefaultModel = "glm4.7"

// Config carries everything the CLI and the gateway need to start.
type Config struct {
	// LLM endpoint credentials.
	APIKey  string
	BaseURL string
	Model   string

	// Addr is the gateway listen address.
	Addr string

	// AuthSecret signs and verifies bearer tokens. Empty disables auth;
	// requests then run as the local user.
	AuthSecret string

	// AuthDB is the sqlite file backing the user store.
	AuthDB string

	// SessionsDir holds the per-user session files.
	SessionsDir string

	// SkillsDir is scanned for SKILL.md skill definitions.
	SkillsDir string

	// Workspace is the root directory all tool I/O is confined to.
	Workspace string
}

// FromEnv builds a Config from the process environment. The process working
// directory becomes the workspace root.
func FromEnv() (*Config, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("OPENAI_BASE_URL is required")
	}

	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	cfg := &Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       envOr("OPENAI_MODEL", DefaultModel),
		Addr:        envOr("OWNAGENT_ADDR", ":8000"),
		AuthSecret:  os.Getenv("OWNAGENT_AUTH_SECRET"),
		AuthDB:      envOr("OWNAGENT_AUTH_DB", "auth.db"),
		SessionsDir: envOr("OWNAGENT_SESSIONS_DIR", "sessions"),
		SkillsDir:   envOr("OWNAGENT_SKILLS_DIR", ".skills"),
		Workspace:   workspace,
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package config

import (
	"os"
	"strings"
	"testing"
)

func TestFromEnvRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "https://api.example.com/v1")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error for missing OPENAI_API_KEY")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected OPENAI_API_KEY error, got %v", err)
	}
}

func TestFromEnvRequiresBaseURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error for missing OPENAI_BASE_URL")
	}
	if !strings.Contains(err.Error(), "OPENAI_BASE_URL") {
		t.Fatalf("expected OPENAI_BASE_URL error, got %v", err)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "https://api.example.com/v1")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OWNAGENT_ADDR", "")
	t.Setenv("OWNAGENT_SESSIONS_DIR", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.Addr != ":8000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":8000")
	}
	if cfg.SessionsDir != "sessions" {
		t.Errorf("SessionsDir = %q, want %q", cfg.SessionsDir, "sessions")
	}
	wd, _ := os.Getwd()
	if cfg.Workspace != wd {
		t.Errorf("Workspace = %q, want %q", cfg.Workspace, wd)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "https://api.example.com/v1")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OWNAGENT_ADDR", "127.0.0.1:9900")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Model != "gpt-4o" {
		t.Errorf("Model = %q, want %q", cfg.Model, "gpt-4o")
	}
	if cfg.Addr != "127.0.0.1:9900" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, "127.0.0.1:9900")
	}
}

// Package main provides the CLI entry point for the ownagent runtime.
//
// ownagent runs an LLM agent with file, shell, browser, todo, and skill
// tools over two surfaces: an interactive terminal chat and an HTTP gateway
// streaming agent events as SSE.
//
// # Basic Usage
//
// Start an interactive chat:
//
//	ownagent chat
//
// Start the HTTP gateway:
//
//	ownagent serve --addr :8000
//
// # Environment Variables
//
// Configuration is environment-driven; a .env file in the working directory
// is loaded first:
//
//   - OPENAI_API_KEY: API key for the chat completion endpoint (required)
//   - OPENAI_BASE_URL: base URL of the endpoint (required)
//   - OPENAI_MODEL: model identifier (default: glm4.7)
//   - OWNAGENT_ADDR: gateway listen address (default: :8000)
//   - OWNAGENT_AUTH_SECRET: JWT signing secret; empty disables auth
//   - OWNAGENT_AUTH_DB: sqlite user store path (default: auth.db)
//   - OWNAGENT_SESSIONS_DIR: session file directory (default: sessions)
//   - OWNAGENT_SKILLS_DIR: skills directory (default: .skills)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"     // Semantic version (e.g., "v1.0.0")
	commit  = "none"    // Git commit SHA
	date    = "unknown" // Build timestamp
)

func main() {
	// Secrets and endpoints come from the environment, optionally seeded
	// from a .env file next to the workspace.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ownagent",
		Short: "ownagent - LLM agent runtime with terminal and HTTP surfaces",
		Long: `ownagent runs an LLM agent loop with streaming output and tool execution.

Surfaces: interactive terminal chat, HTTP gateway with SSE streaming
Tools: files, shell, browser automation, todo planning, skills, MCP servers`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildChatCmd(),
		buildVersionCmd(),
	)

	return rootCmd
}

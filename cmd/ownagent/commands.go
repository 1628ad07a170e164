// Package main provides the CLI entry point for the ownagent runtime.
//
// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder creates a command and wires it to its
// handler in handlers.go.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the HTTP gateway.
func buildServeCmd() *cobra.Command {
	var (
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		Long: `Start the HTTP gateway serving the session API and the SSE chat stream.

The server will:
1. Load configuration from the environment (and .env when present)
2. Discover skills and watch the skills directory for changes
3. Open the sqlite user store when an auth secret is configured
4. Serve sessions, chat, health, and metrics endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Listen on the configured address (default :8000)
  ownagent serve

  # Listen elsewhere, with debug logging
  ownagent serve --addr 127.0.0.1:9000 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, debug)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "",
		"Listen address (overrides OWNAGENT_ADDR)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

// buildChatCmd creates the "chat" command that runs the interactive
// terminal loop.
func buildChatCmd() *cobra.Command {
	var trace bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in the terminal",
		Long: `Run an interactive agent session in the terminal.

Messages are read line by line; the agent's thinking, replies, and tool
activity stream back as they happen. Type "exit" or "quit" to leave.`,
		Example: `  # Plain chat
  ownagent chat

  # Record every runtime event to logs/<run>.jsonl
  ownagent chat --trace`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), trace)
		},
	}

	cmd.Flags().BoolVar(&trace, "trace", false,
		"Write a JSONL event log of the session under logs/")

	return cmd
}

// buildVersionCmd creates the "version" command.
func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ownagent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

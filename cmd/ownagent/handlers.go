// Package main provides the CLI entry point for the ownagent runtime.
//
// handlers.go contains the RunE handler functions for the CLI commands.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/internal/agent/providers"
	"github.com/ownagent/ownagent/internal/auth"
	"github.com/ownagent/ownagent/internal/config"
	"github.com/ownagent/ownagent/internal/gateway"
	"github.com/ownagent/ownagent/internal/mcp"
	"github.com/ownagent/ownagent/internal/observability"
	"github.com/ownagent/ownagent/internal/sessions"
	"github.com/ownagent/ownagent/internal/skills"
	"github.com/ownagent/ownagent/internal/tools/browser"
	"github.com/ownagent/ownagent/internal/tools/exec"
	"github.com/ownagent/ownagent/internal/tools/files"
	"github.com/ownagent/ownagent/internal/tools/interaction"
	"github.com/ownagent/ownagent/internal/tools/todo"
	"github.com/ownagent/ownagent/internal/workspace"
	"github.com/ownagent/ownagent/pkg/models"
)

// runServe implements the serve command: build the shared skills catalogue,
// auth service, and session manager, then serve HTTP until a shutdown
// signal.
func runServe(ctx context.Context, addr string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	logger := slog.Default()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	logger.Info("starting ownagent gateway",
		"version", version,
		"commit", commit,
		"addr", cfg.Addr,
		"model", cfg.Model,
		"debug", debug,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics()

	catalogue := skills.NewCatalogue(cfg.SkillsDir, logger)
	if err := catalogue.Discover(); err != nil {
		logger.Warn("skills discovery failed", "dir", cfg.SkillsDir, "error", err)
	}
	if err := catalogue.StartWatching(ctx); err != nil {
		logger.Warn("skills watcher failed", "error", err)
	}
	defer func() {
		if err := catalogue.Close(); err != nil {
			logger.Warn("skills catalogue close failed", "error", err)
		}
	}()

	authSvc := auth.NewService(auth.Config{})
	if cfg.AuthSecret != "" {
		store, err := auth.OpenStore(cfg.AuthDB)
		if err != nil {
			return fmt.Errorf("open auth store: %w", err)
		}
		defer store.Close()
		authSvc = auth.NewService(auth.Config{Secret: cfg.AuthSecret, Store: store})

		admin, err := store.EnsureUser(ctx, "admin", auth.RoleAdmin)
		if err != nil {
			return fmt.Errorf("ensure admin user: %w", err)
		}
		token, err := authSvc.GenerateToken(ctx, admin)
		if err != nil {
			return fmt.Errorf("issue admin token: %w", err)
		}
		// Tokens are issued out of band; on a fresh store this is the only
		// way in.
		fmt.Printf("Admin bearer token: %s\n", token)
	}

	store, err := sessions.NewStore(cfg.SessionsDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	manager := sessions.NewManager(sessions.ManagerConfig{
		Config:   cfg,
		Store:    store,
		Skills:   catalogue,
		Logger:   logger,
		Metrics:  metrics,
		TraceDir: filepath.Join(cfg.Workspace, "logs"),
	})
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("session manager close failed", "error", err)
		}
	}()

	server := gateway.NewServer(gateway.Config{
		Addr:    cfg.Addr,
		Manager: manager,
		Auth:    authSvc,
		Logger:  logger,
		Metrics: metrics,
	})
	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("ownagent gateway started",
		"addr", server.Addr(),
		"skills", catalogue.Count(),
		"auth", authSvc.Enabled(),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	logger.Info("ownagent gateway stopped gracefully")
	return nil
}

// runChat implements the chat command: assemble a single CLI runtime with
// the full tool set and run the terminal loop on it.
func runChat(ctx context.Context, trace bool) error {
	logger := slog.Default()

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		// The first signal cancels the in-flight step; restoring default
		// handling lets a second one kill the process.
		<-ctx.Done()
		stop()
	}()

	catalogue := skills.NewCatalogue(cfg.SkillsDir, logger)
	if err := catalogue.Discover(); err != nil {
		logger.Warn("skills discovery failed", "dir", cfg.SkillsDir, "error", err)
	}

	resolver, err := workspace.NewResolver(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("workspace resolver: %w", err)
	}
	tc := agent.NewToolContext(resolver, agent.EnvCLI)

	registry := agent.NewRegistry(logger, nil)
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
	for _, tool := range skills.Tools(catalogue) {
		registry.Register(tool)
	}

	clients := mcp.ConnectServers(ctx, filepath.Join(cfg.Workspace, "mcp_config.json"), registry, logger)
	defer func() {
		for _, client := range clients {
			if err := client.Close(); err != nil {
				logger.Warn("mcp client close failed", "server", client.Name(), "error", err)
			}
		}
	}()

	var eventLog *agent.EventLog
	if trace {
		runID := time.Now().Format("20060102_150405")
		dir := filepath.Join(cfg.Workspace, "logs")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		eventLog, err = agent.NewEventLogFile(filepath.Join(dir, "session_"+runID+".jsonl"), runID)
		if err != nil {
			return fmt.Errorf("create event log: %w", err)
		}
		defer eventLog.Close()
	}

	provider := providers.NewOpenAI(providers.OpenAIConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Logger:  logger,
	})
	rt := agent.NewRuntime(agent.RuntimeConfig{
		Provider: provider,
		Registry: registry,
		Context:  agent.NewContextManager(cfg.Workspace, catalogue, logger),
		Tools:    tc,
		Logger:   logger,
		Trace:    eventLog,
	})
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("runtime close failed", "error", err)
		}
	}()

	return chatLoop(ctx, rt, os.Stdin, os.Stdout)
}

// chatLoop reads lines and steps the runtime until exit/quit, EOF, or a
// cancelled context.
func chatLoop(ctx context.Context, rt *agent.Runtime, in io.Reader, out io.Writer) error {
	renderer := &eventRenderer{out: out, color: isTerminal(out)}

	fmt.Fprintln(out, "┌──────────────────────────┐")
	fmt.Fprintln(out, "│   Agent System Online    │")
	fmt.Fprintln(out, "└──────────────────────────┘")

	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, "\n[User]: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if lower := strings.ToLower(input); lower == "exit" || lower == "quit" {
			break
		}
		fmt.Fprintln(out, "│")

		renderer.reset()
		rt.Step(ctx, input, renderer.render)
		fmt.Fprintln(out)
	}
	return scanner.Err()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// eventRenderer prints runtime events for the terminal: yellow thinking,
// green content, tool call/output summaries, red errors. Color codes are
// dropped when out is not a TTY.
type eventRenderer struct {
	out   io.Writer
	color bool
	last  models.AgentEventType
}

func (r *eventRenderer) reset() { r.last = "" }

func (r *eventRenderer) paint(code, s string) string {
	if !r.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (r *eventRenderer) render(ev models.AgentEvent) {
	switch ev.Type {
	case models.EventThinkingDelta:
		fmt.Fprint(r.out, r.paint("93", eventText(ev)))
	case models.EventContentDelta:
		// Separate the reply from the thinking block above it.
		if r.last == models.EventThinkingDelta {
			fmt.Fprint(r.out, "\n\n")
		}
		fmt.Fprint(r.out, r.paint("92", eventText(ev)))
	case models.EventToolCall:
		if call, ok := ev.Content.(models.ToolCallEvent); ok {
			fmt.Fprintf(r.out, "\n\n⚙️  [Tool Call]: %s (%s)\n", call.Name, call.Args)
		}
	case models.EventToolOutput:
		if result, ok := ev.Content.(models.ToolOutputEvent); ok {
			fmt.Fprintf(r.out, "   └──> [Output]: %s\n", summarizeOutput(result.Output))
		}
	case models.EventFinished:
		fmt.Fprintf(r.out, "\n%s\n", r.paint("92", "[Finished]: "+eventText(ev)))
	case models.EventError:
		fmt.Fprintf(r.out, "\n%s\n", r.paint("91", "[Error]: "+eventText(ev)))
	}
	r.last = ev.Type
}

func eventText(ev models.AgentEvent) string {
	s, _ := ev.Content.(string)
	return s
}

// summarizeOutput truncates long tool outputs, except todo plans which are
// printed whole so the status table stays readable.
func summarizeOutput(out string) string {
	if strings.HasPrefix(out, "Current Plan Status:") || strings.HasPrefix(out, "Updated Plan Status:") {
		return "\n" + indent(out, "        ")
	}
	runes := []rune(out)
	if len(runes) > 200 {
		return string(runes[:200]) + "..."
	}
	return out
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

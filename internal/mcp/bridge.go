package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ownagent/ownagent/internal/agent"
	"github.com/ownagent/ownagent/pkg/models"
)

// ConnectServers reads the MCP config, connects every declared server, and
// registers each server's tools on the registry. A server that fails to
// connect is logged and skipped so one bad entry never blocks startup. The
// returned clients stay alive until the caller closes them.
func ConnectServers(ctx context.Context, configPath string, registry *agent.Registry, logger *slog.Logger) []*Client {
	if logger == nil {
		logger = slog.Default()
	}

	configs, err := LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load MCP config", "path", configPath, "error", err)
		return nil
	}

	var clients []*Client
	for _, cfg := range configs {
		logger.Info("initializing MCP server", "name", cfg.Name)

		client, err := NewClient(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize MCP server", "name", cfg.Name, "error", err)
			continue
		}
		if err := client.Connect(ctx); err != nil {
			logger.Error("failed to initialize MCP server", "name", cfg.Name, "error", err)
			continue
		}

		n := RegisterTools(client, registry)
		logger.Info("registered MCP tools", "server", cfg.Name, "count", n)
		clients = append(clients, client)
	}
	return clients
}

// RegisterTools exposes every tool from the client's handshake on the
// registry. The server's input schema is forwarded to the model verbatim.
func RegisterTools(client *Client, registry *agent.Registry) int {
	tools := client.Tools()
	for _, spec := range tools {
		name := spec.Name
		schema := spec.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		registry.RegisterExternal(name, spec.Description, schema, func(ctx context.Context, args json.RawMessage) (*models.ToolResult, error) {
			result, err := client.CallTool(ctx, name, args)
			if err != nil {
				return nil, err
			}
			return FormatResult(result), nil
		})
	}
	return len(tools)
}

// FormatResult flattens a tools/call result into the text handed back to the
// model: text items joined by newlines, placeholders for binary items, and an
// error marker when the server flagged the call.
func FormatResult(result *CallToolResult) *models.ToolResult {
	var parts []string
	for _, item := range result.Content {
		switch item.Type {
		case "text":
			parts = append(parts, item.Text)
		case "image":
			parts = append(parts, "[Image Content]")
		case "resource":
			uri := ""
			if item.Resource != nil {
				uri = item.Resource.URI
			}
			parts = append(parts, fmt.Sprintf("[Resource: %s]", uri))
		}
	}
	output := strings.Join(parts, "\n")

	if result.IsError {
		return models.ToolError("MCP Error: " + output)
	}
	return models.ToolSuccess(output)
}

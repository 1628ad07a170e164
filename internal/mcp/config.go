package mcp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// ConfigFileName is the server declaration file looked up at the workspace root.
const ConfigFileName = "mcp_config.json"

// ServerConfig is one entry under "mcpServers" in mcp_config.json. A command
// selects the stdio transport; a URL selects the SSE transport.
type ServerConfig struct {
	Name    string            `json:"-"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// Stdio reports whether the entry launches a local subprocess.
func (c *ServerConfig) Stdio() bool { return c.Command != "" }

// Validate checks that the entry names a usable transport.
func (c *ServerConfig) Validate() error {
	if c.Command == "" && c.URL == "" {
		return fmt.Errorf("server %q needs either command or url", c.Name)
	}
	return nil
}

type configFile struct {
	MCPServers map[string]*ServerConfig `json:"mcpServers"`
}

// LoadConfig reads mcp_config.json. The file is JSON5, so comments and
// trailing commas are tolerated, and ${VAR} references are expanded from the
// environment before parsing. A missing file means no servers are configured
// and is not an error. Entries come back sorted by name so startup order is
// deterministic.
func LoadConfig(path string) ([]*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg configFile
	if err := json5.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	servers := make([]*ServerConfig, 0, len(cfg.MCPServers))
	for name, server := range cfg.MCPServers {
		if server == nil {
			continue
		}
		server.Name = name
		if err := server.Validate(); err != nil {
			return nil, err
		}
		servers = append(servers, server)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers, nil
}

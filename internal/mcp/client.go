// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the chat engine.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerConfig describes one stdio MCP server.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Validate checks that the server configuration is usable.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("mcp server requires a name")
	}
	if c.Command == "" {
		return fmt.Errorf("mcp server %s requires a command", c.Name)
	}
	return nil
}

// ToolSpec describes a tool available from an MCP server.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// Client wraps a single MCP server connection.
type Client struct {
	config  ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
	tools   []ToolSpec
	mu      sync.RWMutex
	running bool
}

// NewClient creates a new MCP client for the given server configuration.
func NewClient(config ServerConfig) *Client {
	return &Client{config: config}
}

// Name returns the server name.
func (c *Client) Name() string {
	return c.config.Name
}

// Start connects to the MCP server and initializes the session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.client = mcp.NewClient(&mcp.Implementation{
		Name:    "roundtable",
		Version: "1.0.0",
	}, nil)

	cmd := exec.CommandContext(ctx, c.config.Command, c.config.Args...)
	for k, v := range c.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	transport := &mcp.CommandTransport{Command: cmd}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %s: %w", c.config.Name, err)
	}
	c.session = session

	if err := c.refreshTools(ctx); err != nil {
		c.session.Close()
		c.session = nil
		return fmt.Errorf("list tools from %s: %w", c.config.Name, err)
	}

	c.running = true
	return nil
}

// Stop closes the MCP server connection.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	var err error
	if c.session != nil {
		err = c.session.Close()
		c.session = nil
	}
	c.running = false
	c.tools = nil
	return err
}

// IsRunning returns whether the client is connected.
func (c *Client) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Tools returns the available tools from this server.
func (c *Client) Tools() []ToolSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

func (c *Client) refreshTools(ctx context.Context) error {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return err
	}

	c.tools = make([]ToolSpec, 0, len(result.Tools))
	for _, t := range result.Tools {
		schema := make(map[string]any)
		if t.InputSchema != nil {
			if m, ok := t.InputSchema.(map[string]any); ok {
				schema = m
			}
		}
		c.tools = append(c.tools, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return nil
}

// CallTool invokes a tool on the MCP server.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	c.mu.RLock()
	session := c.session
	running := c.running
	c.mu.RUnlock()

	if !running || session == nil {
		return "", fmt.Errorf("MCP server %s is not running", c.config.Name)
	}

	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid tool arguments: %w", err)
		}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	if result.IsError {
		return "", fmt.Errorf("tool %s returned error: %s", name, formatContent(result.Content))
	}

	return formatContent(result.Content), nil
}

// formatContent converts MCP content to a string.
func formatContent(content []mcp.Content) string {
	var result string
	for _, c := range content {
		switch v := c.(type) {
		case *mcp.TextContent:
			result += v.Text
		default:
			if data, err := json.Marshal(c); err == nil {
				result += string(data)
			}
		}
	}
	return result
}

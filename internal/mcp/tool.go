package mcp

import (
	"context"
	"encoding/json"

	"github.com/samsaffron/roundtable/internal/llm"
)

// MCPTool wraps an MCP server tool as an llm.Tool.
type MCPTool struct {
	manager  *Manager
	toolSpec ToolSpec
}

// NewMCPTool creates a new MCP tool wrapper.
func NewMCPTool(manager *Manager, spec ToolSpec) *MCPTool {
	return &MCPTool{
		manager:  manager,
		toolSpec: spec,
	}
}

// Spec returns the tool specification for the LLM.
func (t *MCPTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        t.toolSpec.Name,
		Description: t.toolSpec.Description,
		Schema:      t.toolSpec.Schema,
	}
}

// Execute invokes the tool on the MCP server.
func (t *MCPTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.manager.CallTool(ctx, t.toolSpec.Name, args)
}

// Preview summarizes the call arguments for display.
func (t *MCPTool) Preview(args json.RawMessage) string {
	return llm.ExtractToolInfo(llm.ToolCall{Name: t.toolSpec.Name, Arguments: args})
}

// RegisterMCPTools registers all MCP tools from the manager into the registry.
func RegisterMCPTools(manager *Manager, registry *llm.ToolRegistry) {
	for _, spec := range manager.AllTools() {
		registry.Register(NewMCPTool(manager, spec))
	}
}

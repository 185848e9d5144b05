// Package mcp bridges the model to tools hosted on the integration server.
package mcp

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cognis/internal/agent"
	mcpcore "github.com/haasonsaas/cognis/internal/mcp"
	"github.com/haasonsaas/cognis/internal/tools"
)

// Tool lists and calls integration tools. Responses are returned as
// indented JSON so the model sees http_status and http_ok.
type Tool struct {
	client mcpcore.Invoker
}

func NewTool(client mcpcore.Invoker) *Tool {
	return &Tool{client: client}
}

func (t *Tool) Name() string { return "mcp" }

func (t *Tool) Description() string {
	return "Discover and call tools exposed by MCP servers (actions: list_tools, call_tool)"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":    tools.Enum("", "list_tools", "call_tool"),
		"tool":      tools.Prop("string", "Tool name for call_tool."),
		"arguments": tools.Prop("object", "Tool arguments for call_tool."),
	}, "action")
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.client == nil {
		return tools.NotConfigured("mcp client"), nil
	}
	var (
		result map[string]any
		err    error
	)
	switch action := agent.StringArg(args, "action"); action {
	case "list_tools":
		result, err = t.client.ListTools(ctx)
	case "call_tool":
		name := agent.StringArg(args, "tool")
		if name == "" {
			return tools.Errorf("tool is required for action=call_tool"), nil
		}
		callArgs, _ := args["arguments"].(map[string]any)
		result, err = t.client.CallTool(ctx, name, callArgs)
	default:
		return tools.Errorf("unknown action: %s", action), nil
	}
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

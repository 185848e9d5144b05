// Package message lets the model queue outbound messages on the internal
// bus. Content is PII-redacted before it leaves the tool.
package message

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/bus"
	"github.com/haasonsaas/cognis/internal/tools"
	"github.com/haasonsaas/cognis/pkg/models"
)

type Tool struct {
	bus bus.Publisher
}

func NewTool(publisher bus.Publisher) *Tool {
	return &Tool{bus: publisher}
}

func (t *Tool) Name() string { return "message" }

func (t *Tool) Description() string {
	return "Publish an outbound message into the internal bus"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"channel": tools.Prop("string", "Channel label, e.g. sms or email."),
		"content": tools.Prop("string", "Message body."),
	}, "channel", "content")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.bus == nil {
		return tools.NotConfigured("message bus"), nil
	}
	channel := agent.StringArg(args, "channel")
	content := agent.StringArg(args, "content")
	if channel == "" || content == "" {
		return tools.Errorf("channel and content are required"), nil
	}
	t.bus.Publish(models.AssistantMessage("[" + channel + "] " + Redact(content)))
	return "Queued message for channel: " + channel, nil
}

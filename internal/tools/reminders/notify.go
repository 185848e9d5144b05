// Package reminders implements the notify tool: immediate notifications go
// straight to the message bus, delayed ones become one-shot cron jobs.
package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/bus"
	croncore "github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/tools"
	"github.com/haasonsaas/cognis/pkg/models"
)

const labelMax = 40

// NotifyTool sends or schedules a notification.
type NotifyTool struct {
	bus  bus.Publisher
	cron *croncore.Service
	now  func() time.Time
	loc  *time.Location
}

func NewNotifyTool(publisher bus.Publisher, service *croncore.Service) *NotifyTool {
	return &NotifyTool{bus: publisher, cron: service, now: time.Now, loc: time.Local}
}

func (t *NotifyTool) Name() string { return "notify" }

func (t *NotifyTool) Description() string {
	return "Send immediate or scheduled notification messages"
}

func (t *NotifyTool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"message":   tools.Prop("string", "Notification text."),
		"label":     tools.Prop("string", "Job name for scheduled notifications."),
		"at":        tools.Prop("string", "When to deliver, e.g. 'tomorrow at 9am'."),
		"inSeconds": tools.Prop("integer", "Deliver after this many seconds."),
	}, "message")
}

func (t *NotifyTool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	message := agent.StringArg(args, "message")
	if message == "" {
		return tools.Errorf("message is required"), nil
	}
	label := agent.RawStringArg(args, "label")
	if _, ok := args["label"]; !ok {
		label = truncate(message, labelMax)
	}

	if at := agent.StringArg(args, "at"); at != "" {
		if t.cron == nil {
			return tools.NotConfigured("cron service"), nil
		}
		when, err := croncore.ParseNaturalTime(at, t.now(), t.loc)
		if err != nil {
			return tools.Errorf("%s", err), nil
		}
		job, err := t.cron.AddAt(label, when.UnixMilli(), message)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Notification scheduled at %s (id: %s)", at, job.ID), nil
	}

	in := agent.IntArg(args, "inSeconds", 0)
	if in <= 0 {
		if t.bus == nil {
			return tools.NotConfigured("message bus"), nil
		}
		t.bus.Publish(models.AssistantMessage("[notify] " + message))
		return "Notification delivered immediately", nil
	}
	if t.cron == nil {
		return tools.NotConfigured("cron service"), nil
	}
	job, err := t.cron.AddIn(label, in, message)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Notification scheduled in %ds (id: %s)", in, job.ID), nil
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "..."
}

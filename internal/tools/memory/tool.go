// Package memory exposes the long-term memory store to the model.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	memorycore "github.com/haasonsaas/cognis/internal/memory"
	"github.com/haasonsaas/cognis/internal/tools"
)

// Store is the part of the memory store the tool drives.
type Store interface {
	Remember(content, source string, tags []string) (memorycore.Entry, error)
	Recall(query string, max int) ([]memorycore.Entry, error)
	Forget(id string) (bool, error)
	Count() (int, error)
}

// Tool manages memories: remember, recall, forget, list.
type Tool struct {
	store Store
}

func NewTool(store Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "memory" }

func (t *Tool) Description() string {
	return "Manage long-term memory: remember, recall, forget, list"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action":     tools.Enum("", "remember", "recall", "forget", "list"),
		"content":    tools.Prop("string", "Fact to remember."),
		"tags":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"query":      tools.Prop("string", "Recall query; blank returns the newest memories."),
		"id":         tools.Prop("string", "Memory id to forget."),
		"maxResults": tools.Prop("integer", ""),
	}, "action")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.store == nil {
		return tools.NotConfigured("memory store"), nil
	}
	switch action := agent.StringArg(args, "action"); action {
	case "remember":
		content := agent.StringArg(args, "content")
		if content == "" {
			return tools.Errorf("content is required"), nil
		}
		entry, err := t.store.Remember(content, "agent", tags(args["tags"]))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Memory stored (id: %s)", entry.ID), nil
	case "recall":
		entries, err := t.store.Recall(agent.RawStringArg(args, "query"), positive(args, 10))
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "No matching memories found", nil
		}
		return strings.Join(formatEntries(entries), "\n"), nil
	case "forget":
		id := agent.StringArg(args, "id")
		if id == "" {
			return tools.Errorf("id is required"), nil
		}
		removed, err := t.store.Forget(id)
		if err != nil {
			return "", err
		}
		if !removed {
			return "Memory not found: " + id, nil
		}
		return "Memory removed: " + id, nil
	case "list":
		entries, err := t.store.Recall("", positive(args, 20))
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "No memories stored", nil
		}
		total, err := t.store.Count()
		if err != nil {
			return "", err
		}
		lines := append([]string{fmt.Sprintf("Stored memories (%d total):", total)}, formatEntries(entries)...)
		return strings.Join(lines, "\n"), nil
	default:
		return tools.Errorf("unknown action: %s", action), nil
	}
}

func formatEntries(entries []memorycore.Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := "- [" + e.ID + "] " + e.Content
		if len(e.Tags) > 0 {
			line += " (" + strings.Join(e.Tags, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func positive(args map[string]any, def int) int {
	if n := agent.IntArg(args, "maxResults", def); n > 0 {
		return n
	}
	return def
}

func tags(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

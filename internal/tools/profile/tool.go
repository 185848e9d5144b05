// Package profile lets the model read and update the user profile.
package profile

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/cognis/internal/agent"
	profilecore "github.com/haasonsaas/cognis/internal/profile"
	"github.com/haasonsaas/cognis/internal/tools"
)

// Store is the profile store surface the tool uses.
type Store interface {
	Get() (profilecore.UserProfile, error)
	SetField(field, value string) error
	SetPreference(key, value string) error
	AddGoal(goal string) error
	RemoveGoal(goal string) error
	AddRelationship(name, notes string) error
}

type Tool struct {
	store Store
}

func NewTool(store Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "profile" }

func (t *Tool) Description() string {
	return "Read and update user profile: get, set_name, set_timezone, set_preference, set_notes, add_goal, remove_goal, add_person"
}

func (t *Tool) Schema() json.RawMessage {
	return tools.Schema(map[string]any{
		"action": tools.Enum("", "get", "set_name", "set_timezone", "set_preference", "set_notes", "add_goal", "remove_goal", "add_person"),
		"value":  tools.Prop("string", "New value, or the goal text."),
		"key":    tools.Prop("string", "Preference key."),
		"name":   tools.Prop("string", "Person name for add_person."),
		"notes":  tools.Prop("string", "Person notes for add_person."),
	}, "action")
}

func (t *Tool) Execute(_ context.Context, args map[string]any, _ *agent.ToolContext) (string, error) {
	if t.store == nil {
		return tools.NotConfigured("profile store"), nil
	}
	value := agent.StringArg(args, "value")
	switch action := agent.StringArg(args, "action"); action {
	case "get":
		p, err := t.store.Get()
		if err != nil {
			return "", err
		}
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "set_name":
		return t.setField(profilecore.FieldName, value)
	case "set_timezone":
		return t.setField(profilecore.FieldTimezone, value)
	case "set_notes":
		return t.setField(profilecore.FieldNotes, value)
	case "set_preference":
		key := agent.StringArg(args, "key")
		if key == "" {
			return tools.Errorf("key is required"), nil
		}
		if err := t.store.SetPreference(key, value); err != nil {
			return "", err
		}
		return "Preference updated", nil
	case "add_goal":
		if value == "" {
			return tools.Errorf("goal is required"), nil
		}
		if err := t.store.AddGoal(value); err != nil {
			return "", err
		}
		return "Goal added", nil
	case "remove_goal":
		if value == "" {
			return tools.Errorf("goal is required"), nil
		}
		if err := t.store.RemoveGoal(value); err != nil {
			return "", err
		}
		return "Goal removed", nil
	case "add_person":
		name := agent.StringArg(args, "name")
		if name == "" {
			return tools.Errorf("name is required"), nil
		}
		if err := t.store.AddRelationship(name, agent.StringArg(args, "notes")); err != nil {
			return "", err
		}
		return "Person saved", nil
	default:
		return tools.Errorf("unknown action: %s", action), nil
	}
}

func (t *Tool) setField(field, value string) (string, error) {
	if value == "" {
		return tools.Errorf("value is required"), nil
	}
	if err := t.store.SetField(field, value); err != nil {
		return "", err
	}
	return "Profile updated", nil
}

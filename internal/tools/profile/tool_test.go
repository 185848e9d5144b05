package profile

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	profilecore "github.com/haasonsaas/cognis/internal/profile"
)

func TestProfileTool(t *testing.T) {
	store := profilecore.NewStore(filepath.Join(t.TempDir(), "profile.json"))
	tool := NewTool(store)

	steps := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"action": "set_name", "value": "Ada"}, "Profile updated"},
		{map[string]any{"action": "set_timezone", "value": "Europe/London"}, "Profile updated"},
		{map[string]any{"action": "set_preference", "key": "drink", "value": "tea"}, "Preference updated"},
		{map[string]any{"action": "add_goal", "value": "ship v1"}, "Goal added"},
		{map[string]any{"action": "add_goal", "value": "run 5k"}, "Goal added"},
		{map[string]any{"action": "remove_goal", "value": "run 5k"}, "Goal removed"},
		{map[string]any{"action": "add_person", "name": "Grace", "notes": "mentor"}, "Person saved"},
		{map[string]any{"action": "set_name", "value": " "}, "Error: value is required"},
		{map[string]any{"action": "set_preference", "value": "x"}, "Error: key is required"},
		{map[string]any{"action": "add_goal"}, "Error: goal is required"},
		{map[string]any{"action": "add_person"}, "Error: name is required"},
		{map[string]any{"action": "fly"}, "Error: unknown action: fly"},
	}
	for _, step := range steps {
		got, err := tool.Execute(context.Background(), step.args, nil)
		if err != nil || got != step.want {
			t.Fatalf("Execute(%v) = %q, %v; want %q", step.args, got, err, step.want)
		}
	}

	out, err := tool.Execute(context.Background(), map[string]any{"action": "get"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	var p profilecore.UserProfile
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("get is not JSON: %v", err)
	}
	if p.Name != "Ada" || p.Timezone != "Europe/London" || p.Preferences["drink"] != "tea" ||
		len(p.Goals) != 1 || p.Goals[0] != "ship v1" || p.Relationships["Grace"] != "mentor" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestProfileToolUnconfigured(t *testing.T) {
	out, _ := NewTool(nil).Execute(context.Background(), map[string]any{"action": "get"}, nil)
	if out != "Error: profile store is not configured" {
		t.Fatalf("out = %q", out)
	}
}

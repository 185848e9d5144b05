package tools

import (
	"encoding/json"
	"testing"
)

func TestSchema(t *testing.T) {
	raw := Schema(map[string]any{
		"action": Enum("what to do", "a", "b"),
		"n":      Prop("integer", ""),
	}, "action")
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if decoded["type"] != "object" {
		t.Fatalf("type = %v", decoded["type"])
	}
	req, _ := decoded["required"].([]any)
	if len(req) != 1 || req[0] != "action" {
		t.Fatalf("required = %v", decoded["required"])
	}
	props := decoded["properties"].(map[string]any)
	if _, ok := props["n"].(map[string]any)["description"]; ok {
		t.Fatal("empty description must be omitted")
	}
}

func TestMessages(t *testing.T) {
	if got := NotConfigured("cron service"); got != "Error: cron service is not configured" {
		t.Fatalf("NotConfigured = %q", got)
	}
	if got := Unsupported("fly"); got != "Error: unsupported action: fly" {
		t.Fatalf("Unsupported = %q", got)
	}
}

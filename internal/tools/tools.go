// Package tools holds helpers shared by the built-in tool packages under
// internal/tools.
package tools

import (
	"encoding/json"
	"fmt"
)

// Schema builds an object schema from property definitions.
func Schema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Prop is a property with a type and an optional description.
func Prop(typ, description string) map[string]any {
	p := map[string]any{"type": typ}
	if description != "" {
		p["description"] = description
	}
	return p
}

// Enum is a string property restricted to values.
func Enum(description string, values ...string) map[string]any {
	p := Prop("string", description)
	p["enum"] = values
	return p
}

// Errorf formats a model-facing error line.
func Errorf(format string, args ...any) string {
	return "Error: " + fmt.Sprintf(format, args...)
}

// NotConfigured is returned when a tool's collaborator is missing.
func NotConfigured(what string) string {
	return Errorf("%s is not configured", what)
}

// Unsupported reports an unknown action.
func Unsupported(action string) string {
	return Errorf("unsupported action: %s", action)
}

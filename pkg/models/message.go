// Package models provides the domain types shared by the Cognis agent core.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ParseRole maps a wire role onto a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	case RoleTool:
		return RoleTool, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ToolCall is a model's request to run a tool.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ArgumentsJSON renders the arguments as compact JSON ("{}" when empty).
func (c ToolCall) ArgumentsJSON() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ChatMessage is one entry of a transcript.
//
// A tool message always carries a ToolCallID and never ToolCalls; only
// assistant messages carry ToolCalls. Use the constructors to keep that true.
type ChatMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// AssistantToolCallMessage builds an assistant turn that requests tool calls.
func AssistantToolCallMessage(content string, calls []ToolCall) ChatMessage {
	copied := make([]ToolCall, len(calls))
	copy(copied, calls)
	return ChatMessage{Role: RoleAssistant, Content: content, ToolCalls: copied}
}

// ToolMessage builds the result message for a tool call.
func ToolMessage(content, toolCallID string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// HasToolCalls reports whether the message requests tool execution.
func (m ChatMessage) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Validate checks the role-specific invariants.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem:
		if m.ToolCallID != "" || len(m.ToolCalls) > 0 {
			return fmt.Errorf("system message must not carry tool data")
		}
	case RoleUser:
		if m.ToolCallID != "" || len(m.ToolCalls) > 0 {
			return fmt.Errorf("user message must not carry tool data")
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return fmt.Errorf("assistant message must not carry a tool call id")
		}
		for _, c := range m.ToolCalls {
			if strings.TrimSpace(c.Name) == "" {
				return fmt.Errorf("tool call %q has no name", c.ID)
			}
		}
	case RoleTool:
		if strings.TrimSpace(m.ToolCallID) == "" {
			return fmt.Errorf("tool message requires a tool call id")
		}
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("tool message must not carry tool calls")
		}
	default:
		return fmt.Errorf("unknown role %q", m.Role)
	}
	return nil
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ParametersMap decodes the parameter schema, returning an empty object schema
// when it is missing or malformed.
func (d ToolDefinition) ParametersMap() map[string]any {
	out := map[string]any{}
	if len(d.Parameters) > 0 {
		if err := json.Unmarshal(d.Parameters, &out); err == nil {
			return out
		}
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// LLMResponse is the common reply shape of every provider dialect.
type LLMResponse struct {
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls,omitempty"`
	Usage     map[string]any `json:"usage,omitempty"`
}

// HasToolCalls reports whether the reply asks for tool execution.
func (r *LLMResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// AgentResult is emitted once per agent run.
type AgentResult struct {
	Content    string         `json:"content"`
	Transcript []ChatMessage  `json:"transcript"`
	Usage      map[string]any `json:"usage,omitempty"`
}

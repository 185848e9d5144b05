package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/pkg/models"
)

// DisabledProvider stands in for an unconfigured slot. Every chat fails
// with the same reply so a fallback chain skips it deterministically.
type DisabledProvider struct {
	name   string
	reason string
}

func NewDisabledProvider(name, reason string) *DisabledProvider {
	if strings.TrimSpace(reason) == "" {
		reason = "provider is disabled"
	}
	return &DisabledProvider{name: name, reason: reason}
}

func (p *DisabledProvider) Name() string { return p.name }

// Reason is why the slot is disabled.
func (p *DisabledProvider) Reason() string { return p.reason }

func (p *DisabledProvider) Chat(context.Context, string, []models.ChatMessage, []models.ToolDefinition) *models.LLMResponse {
	return agent.ErrorResponse(
		fmt.Sprintf("provider %s is not configured (%s)", p.name, p.reason),
		map[string]any{"provider": p.name, "disabled": true},
	)
}

// EchoProvider answers with the last user message. It needs no network and
// is used for offline runs and smoke tests.
type EchoProvider struct {
	name string
}

func NewEchoProvider(name string) *EchoProvider {
	if name == "" {
		name = "echo"
	}
	return &EchoProvider{name: name}
}

func (p *EchoProvider) Name() string { return p.name }

func (p *EchoProvider) Chat(_ context.Context, _ string, transcript []models.ChatMessage, _ []models.ToolDefinition) *models.LLMResponse {
	last := ""
	for _, m := range transcript {
		if m.Role == models.RoleUser {
			last = m.Content
		}
	}
	return &models.LLMResponse{
		Content: "[" + p.name + "] " + last,
		Usage:   map[string]any{"provider": p.name},
	}
}

package providers

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/pkg/models"
)

const fallbackLogLimit = 300

// FallbackProvider tries an ordered chain under one virtual name. The first
// reply that is not a provider failure wins; when every member fails the
// last failure is returned.
type FallbackProvider struct {
	name   string
	chain  []agent.LLMProvider
	logger *slog.Logger
}

func NewFallbackProvider(name string, chain []agent.LLMProvider, logger *slog.Logger) *FallbackProvider {
	if logger == nil {
		logger = slog.Default()
	}
	members := make([]agent.LLMProvider, 0, len(chain))
	for _, p := range chain {
		if p != nil {
			members = append(members, p)
		}
	}
	return &FallbackProvider{
		name:   name,
		chain:  members,
		logger: logger.With("component", "provider_fallback", "chain", name),
	}
}

func (f *FallbackProvider) Name() string { return f.name }

// Members returns the names of the chained providers in order.
func (f *FallbackProvider) Members() []string {
	names := make([]string, 0, len(f.chain))
	for _, p := range f.chain {
		names = append(names, p.Name())
	}
	return names
}

func (f *FallbackProvider) Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	last := agent.ErrorResponse("no providers in fallback chain", nil)
	for _, p := range f.chain {
		if err := ctx.Err(); err != nil {
			return agent.ErrorResponse(err.Error(), nil)
		}
		resp := p.Chat(ctx, model, transcript, tools)
		if resp == nil {
			resp = agent.ErrorResponse("provider "+p.Name()+" returned no reply", nil)
		}
		if !agent.IsErrorResponse(resp) {
			f.logger.Debug("provider served request", "provider", p.Name())
			return resp
		}
		reason := replyReason(resp)
		f.logger.Warn("provider failed, trying next",
			"provider", p.Name(),
			"reason", string(reason),
			"slot_unusable", reason.ShouldFailover(),
			"error", truncate(resp.Content, fallbackLogLimit),
		)
		last = resp
	}
	return last
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

package agent

import (
	"context"
	"strings"

	"github.com/haasonsaas/cognis/pkg/models"
)

// ErrorPrefix starts the content of every failed provider reply.
const ErrorPrefix = "Error calling LLM:"

// LLMProvider is a single chat backend.
//
// Chat never returns a Go error: failures come back as a reply whose content
// begins with ErrorPrefix and carries no tool calls. Implementations must be
// safe for concurrent use.
type LLMProvider interface {
	Name() string
	Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse
}

// ProviderResolver picks the provider for a run.
type ProviderResolver interface {
	Resolve(preferred, model string) (LLMProvider, error)
}

// IsErrorResponse reports whether resp is a provider failure.
func IsErrorResponse(resp *models.LLMResponse) bool {
	return resp == nil || strings.HasPrefix(resp.Content, ErrorPrefix)
}

// ErrorResponse builds a failure reply with the given detail and usage.
func ErrorResponse(detail string, usage map[string]any) *models.LLMResponse {
	if usage == nil {
		usage = map[string]any{}
	}
	return &models.LLMResponse{Content: ErrorPrefix + " " + detail, Usage: usage}
}

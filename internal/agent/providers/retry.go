package providers

import (
	"context"
	"fmt"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/backoff"
	"github.com/haasonsaas/cognis/pkg/models"
)

// defaultMaxAttempts bounds HTTP retries for the chat/completions and
// messages dialects.
const defaultMaxAttempts = 3

// retrier runs one provider call with exponential backoff on retryable
// failures (250ms doubling, capped at 2s).
type retrier struct {
	policy      backoff.Policy
	maxAttempts int
}

func newRetrier(maxAttempts int) retrier {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return retrier{policy: backoff.ProviderPolicy(), maxAttempts: maxAttempts}
}

func (r retrier) do(ctx context.Context, fn func(ctx context.Context) (*models.LLMResponse, error)) (*models.LLMResponse, error) {
	res, err := backoff.Retry(ctx, r.policy, r.maxAttempts, IsRetryable, func(int) (*models.LLMResponse, error) {
		return fn(ctx)
	})
	return res.Value, err
}

// failure converts err into the normalized error reply.
func failure(err error) *models.LLMResponse {
	if providerErr, ok := GetProviderError(err); ok {
		return agent.ErrorResponse(providerErr.Detail(), providerErr.Usage())
	}
	return agent.ErrorResponse(err.Error(), nil)
}

func missingCredential(kind, provider string) *models.LLMResponse {
	return agent.ErrorResponse(fmt.Sprintf("missing %s for provider %s", kind, provider), nil)
}

// systemPrompt joins every system message with a blank line.
func systemPrompt(transcript []models.ChatMessage) string {
	var out string
	for _, m := range transcript {
		if m.Role != models.RoleSystem {
			continue
		}
		if out == "" {
			out = m.Content
		} else {
			out += "\n\n" + m.Content
		}
	}
	return out
}

package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/cognis/pkg/models"
)

// OpenAICompatConfig configures an OpenAI-compatible chat/completions slot
// (openrouter, openai, github_copilot, bedrock_openai).
type OpenAICompatConfig struct {
	Name         string
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	// MaxAttempts defaults to 3.
	MaxAttempts int
	HTTPClient  *http.Client
}

// OpenAICompatProvider speaks the streamed chat/completions dialect.
//
// Tool-call fragments are merged by call id (or index when the id is only
// sent on the first fragment) and decoded once the stream ends. Connection
// errors, HTTP 429 and HTTP 5xx are retried with exponential backoff; other
// HTTP errors are returned at once as "Error calling LLM: HTTP <code> <body>".
type OpenAICompatProvider struct {
	name   string
	client *openai.Client
	retry  retrier
}

// NewOpenAICompatProvider builds a provider. A blank API key yields a
// provider whose every chat reports the missing key.
func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	p := &OpenAICompatProvider{name: cfg.Name, retry: newRetrier(cfg.MaxAttempts)}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return p
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	clientCfg := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); base != "" {
		clientCfg.BaseURL = base
	}
	clientCfg.HTTPClient = &compatDoer{client: httpClient, headers: cfg.ExtraHeaders}
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

func (p *OpenAICompatProvider) Name() string {
	return p.name
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	if p.client == nil {
		return missingCredential("API key", p.name)
	}
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(transcript),
		Stream:   true,
	}
	if len(tools) > 0 {
		req.Tools = toOpenAITools(tools)
		req.ToolChoice = "auto"
	}

	resp, err := p.retry.do(ctx, func(ctx context.Context) (*models.LLMResponse, error) {
		return p.stream(ctx, req)
	})
	if err != nil {
		return failure(err)
	}
	return resp
}

func (p *OpenAICompatProvider) stream(ctx context.Context, req openai.ChatCompletionRequest) (*models.LLMResponse, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err, req.Model)
	}
	defer stream.Close()

	var content strings.Builder
	calls := newToolCallBuffer()
	usage := map[string]any{}
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, p.wrapError(err, req.Model)
		}
		if chunk.Usage != nil {
			usage = openAIUsage(chunk.Usage)
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			for _, tc := range choice.Delta.ToolCalls {
				index := -1
				if tc.Index != nil {
					index = *tc.Index
				}
				calls.add(index, tc.ID, tc.Function.Name, tc.Function.Arguments)
			}
		}
	}
	return &models.LLMResponse{
		Content:   content.String(),
		ToolCalls: calls.finish(),
		Usage:     usage,
	}, nil
}

func (p *OpenAICompatProvider) wrapError(err error, model string) error {
	providerErr := NewProviderError(p.name, model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		} else if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return providerErr.WithStatus(reqErr.HTTPStatusCode).WithBody(strings.TrimSpace(string(reqErr.Body)))
	}
	return providerErr
}

func toOpenAIMessages(transcript []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, m := range transcript {
		msg := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case models.RoleAssistant:
			for i, call := range m.ToolCalls {
				id := call.ID
				if strings.TrimSpace(id) == "" {
					id = fmt.Sprintf("call_%d", i)
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   id,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.ArgumentsJSON(),
					},
				})
			}
		case models.RoleTool:
			msg.ToolCallID = m.ToolCallID
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(defs []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.ParametersMap(),
			},
		})
	}
	return out
}

func openAIUsage(u *openai.Usage) map[string]any {
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}

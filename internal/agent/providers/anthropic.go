package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/cognis/pkg/models"
)

// DefaultAnthropicMaxTokens is sent when the config leaves maxTokens unset.
const DefaultAnthropicMaxTokens = 4096

// AnthropicConfig configures the messages dialect.
type AnthropicConfig struct {
	Name        string
	APIKey      string
	APIBase     string
	MaxTokens   int
	MaxAttempts int
	HTTPClient  *http.Client
}

// AnthropicProvider speaks the Anthropic messages API through the official
// SDK. System messages are hoisted into the system field, assistant tool
// calls become tool_use blocks and tool replies become tool_result blocks.
type AnthropicProvider struct {
	name      string
	client    *anthropic.Client
	maxTokens int64
	retry     retrier
}

// NewAnthropicProvider builds a provider. A blank API key yields a provider
// whose every chat reports the missing key.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultAnthropicMaxTokens
	}
	p := &AnthropicProvider{name: name, maxTokens: int64(maxTokens), retry: newRetrier(cfg.MaxAttempts)}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return p
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
		// Retries are handled by p.retry so every dialect shares one policy.
		option.WithMaxRetries(0),
	}
	if base := anthropicBaseURL(cfg.APIBase); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := anthropic.NewClient(opts...)
	p.client = &client
	return p
}

// anthropicBaseURL trims a trailing "/v1"; the SDK appends its own path.
func anthropicBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		return ""
	}
	return base + "/"
}

func (p *AnthropicProvider) Name() string {
	return p.name
}

func (p *AnthropicProvider) Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	if p.client == nil {
		return missingCredential("API key", p.name)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  toAnthropicMessages(transcript),
		MaxTokens: p.maxTokens,
	}
	if system := systemPrompt(transcript); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	resp, err := p.retry.do(ctx, func(ctx context.Context) (*models.LLMResponse, error) {
		return p.stream(ctx, params)
	})
	if err != nil {
		return failure(err)
	}
	return resp
}

func (p *AnthropicProvider) stream(ctx context.Context, params anthropic.MessageNewParams) (*models.LLMResponse, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	calls := newToolCallBuffer()
	var inputTokens, outputTokens int64
	currentTool := ""
	block := -1

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			inputTokens = event.AsMessageStart().Message.Usage.InputTokens

		case "content_block_start":
			start := event.AsContentBlockStart()
			block = int(start.Index)
			currentTool = ""
			if start.ContentBlock.Type == "tool_use" {
				toolUse := start.ContentBlock.AsToolUse()
				currentTool = toolUse.ID
				calls.add(block, toolUse.ID, toolUse.Name, "")
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				content.WriteString(delta.Text)
			case "input_json_delta":
				if currentTool != "" {
					calls.add(block, currentTool, "", delta.PartialJSON)
				}
			}

		case "content_block_stop":
			currentTool = ""

		case "message_delta":
			if out := event.AsMessageDelta().Usage.OutputTokens; out > 0 {
				outputTokens = out
			}

		case "error":
			return nil, NewProviderError(p.name, string(params.Model), errors.New("anthropic stream error")).
				WithBody(event.RawJSON())
		}
	}
	if err := stream.Err(); err != nil {
		return nil, p.wrapError(err, string(params.Model))
	}

	return &models.LLMResponse{
		Content:   content.String(),
		ToolCalls: calls.finish(),
		Usage: map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	}, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	providerErr := NewProviderError(p.name, model, err)

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return providerErr
	}
	raw := strings.TrimSpace(apiErr.RawJSON())
	providerErr = providerErr.WithStatus(apiErr.StatusCode).WithBody(raw)
	if apiErr.RequestID != "" {
		providerErr = providerErr.WithRequestID(apiErr.RequestID)
	}
	var payload anthropicErrorPayload
	if raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			providerErr = providerErr.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			providerErr = providerErr.WithCode(payload.Error.Type)
		}
	}
	return providerErr
}

func toAnthropicMessages(transcript []models.ChatMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case models.RoleSystem:
			continue

		case models.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))

		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(defs []models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		params := def.ParametersMap()
		schema := anthropic.ToolInputSchemaParam{Properties: params["properties"]}
		if required, ok := params["required"].([]any); ok {
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if tool.OfTool != nil && def.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		out = append(out, tool)
	}
	return out
}

package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/haasonsaas/cognis/pkg/models"
)

// DefaultCodexEndpoint is the ChatGPT-backed responses endpoint.
const DefaultCodexEndpoint = "https://chatgpt.com/backend-api/codex/responses"

// CodexConfig configures the responses dialect.
type CodexConfig struct {
	Name        string
	AccessToken string
	AccountID   string
	Endpoint    string
	// MaxAttempts defaults to 1; the responses endpoint is not retried
	// unless asked.
	MaxAttempts int
	HTTPClient  *http.Client
}

// CodexProvider speaks the streamed responses API. The bearer token is
// injected by an oauth2 transport; system messages become "instructions".
type CodexProvider struct {
	name      string
	accountID string
	endpoint  string
	client    *http.Client
	retry     retrier
}

// NewCodexProvider builds a provider. A blank token yields a provider whose
// every chat reports the missing token.
func NewCodexProvider(cfg CodexConfig) *CodexProvider {
	name := cfg.Name
	if name == "" {
		name = "openai_codex"
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultCodexEndpoint
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	p := &CodexProvider{
		name:      name,
		accountID: strings.TrimSpace(cfg.AccountID),
		endpoint:  endpoint,
		retry:     newRetrier(attempts),
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return p
	}

	base := cfg.HTTPClient
	if base == nil {
		base = newHTTPClient()
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	p.client = &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   transport,
		},
	}
	return p
}

func (p *CodexProvider) Name() string {
	return p.name
}

func (p *CodexProvider) Chat(ctx context.Context, model string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	if p.client == nil {
		return missingCredential("access token", p.name)
	}
	model = normalizeCodexModel(model)
	body, err := json.Marshal(p.payload(model, transcript, tools))
	if err != nil {
		return failure(fmt.Errorf("encode request: %w", err))
	}

	resp, err := p.retry.do(ctx, func(ctx context.Context) (*models.LLMResponse, error) {
		return p.send(ctx, model, body)
	})
	if err != nil {
		return failure(err)
	}
	return resp
}

func normalizeCodexModel(model string) string {
	model = strings.ReplaceAll(model, "openai-codex/", "")
	return strings.ReplaceAll(model, "openai_codex/", "")
}

type codexTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type codexPayload struct {
	Model             string           `json:"model"`
	Stream            bool             `json:"stream"`
	ToolChoice        string           `json:"tool_choice"`
	ParallelToolCalls bool             `json:"parallel_tool_calls"`
	Store             bool             `json:"store"`
	Input             []map[string]any `json:"input"`
	Instructions      string           `json:"instructions,omitempty"`
	Tools             []codexTool      `json:"tools,omitempty"`
}

func (p *CodexProvider) payload(model string, transcript []models.ChatMessage, tools []models.ToolDefinition) codexPayload {
	out := codexPayload{
		Model:             model,
		Stream:            true,
		ToolChoice:        "auto",
		ParallelToolCalls: true,
		Store:             false,
		Input:             codexInput(transcript),
		Instructions:      systemPrompt(transcript),
	}
	for _, def := range tools {
		if strings.TrimSpace(def.Name) == "" {
			continue
		}
		out.Tools = append(out.Tools, codexTool{
			Type:        "function",
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.ParametersMap(),
		})
	}
	return out
}

// codexInput maps the transcript to response input items. Assistant tool
// calls are replayed as function_call items so that the following
// function_call_output items have a matching call.
func codexInput(transcript []models.ChatMessage) []map[string]any {
	items := make([]map[string]any, 0, len(transcript))
	for _, m := range transcript {
		switch m.Role {
		case models.RoleSystem:
		case models.RoleUser:
			items = append(items, map[string]any{
				"role":    "user",
				"content": []map[string]any{{"type": "input_text", "text": m.Content}},
			})
		case models.RoleAssistant:
			if m.Content != "" || len(m.ToolCalls) == 0 {
				items = append(items, map[string]any{
					"type":    "message",
					"role":    "assistant",
					"content": []map[string]any{{"type": "output_text", "text": m.Content}},
					"status":  "completed",
				})
			}
			for _, call := range m.ToolCalls {
				items = append(items, map[string]any{
					"type":      "function_call",
					"call_id":   call.ID,
					"name":      call.Name,
					"arguments": call.ArgumentsJSON(),
				})
			}
		case models.RoleTool:
			items = append(items, map[string]any{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.Content,
			})
		}
	}
	return items
}

func (p *CodexProvider) send(ctx context.Context, model string, body []byte) (*models.LLMResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(p.name, model, err)
	}
	req.Header.Set("OpenAI-Beta", "responses=experimental")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("originator", "cognis")
	if p.accountID != "" {
		req.Header.Set("chatgpt-account-id", p.accountID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, NewProviderError(p.name, model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, NewProviderError(p.name, model, fmt.Errorf("codex responses: HTTP %d", resp.StatusCode)).
			WithStatus(resp.StatusCode).
			WithBody(strings.TrimSpace(string(raw)))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		out, err := parseCodexStream(resp.Body)
		if err != nil {
			return nil, NewProviderError(p.name, model, err)
		}
		return out, nil
	}

	var full struct {
		OutputText string `json:"output_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&full); err != nil && err != io.EOF {
		return nil, NewProviderError(p.name, model, fmt.Errorf("decode response: %w", err))
	}
	return &models.LLMResponse{Content: full.OutputText, Usage: map[string]any{}}, nil
}

type codexEvent struct {
	Type   string `json:"type"`
	Delta  string `json:"delta"`
	CallID string `json:"call_id"`
	ItemID string `json:"item_id"`
	Item   struct {
		Type      string `json:"type"`
		ID        string `json:"id"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item"`
	Usage    map[string]any `json:"usage"`
	Response struct {
		Usage map[string]any `json:"usage"`
	} `json:"response"`
}

// parseCodexStream folds response events into a reply. Malformed event
// payloads are skipped.
func parseCodexStream(r io.Reader) (*models.LLMResponse, error) {
	var content strings.Builder
	calls := newToolCallBuffer()
	itemCalls := map[string]string{}
	usage := map[string]any{}

	err := readSSEData(r, func(payload string) bool {
		var event codexEvent
		if json.Unmarshal([]byte(payload), &event) != nil {
			return true
		}

		if strings.Contains(event.Type, "output_text.delta") {
			content.WriteString(event.Delta)
		}
		if event.Type == "response.output_item.added" && event.Item.Type == "function_call" {
			callID := event.Item.CallID
			if callID == "" {
				callID = event.Item.ID
			}
			if event.Item.ID != "" {
				itemCalls[event.Item.ID] = callID
			}
			calls.add(-1, callID, event.Item.Name, event.Item.Arguments)
		}
		if strings.Contains(event.Type, "function_call_arguments.delta") {
			callID := event.CallID
			if callID == "" {
				callID = itemCalls[event.ItemID]
			}
			calls.add(-1, callID, "", event.Delta)
		}
		if event.Usage != nil {
			usage = event.Usage
		} else if event.Response.Usage != nil {
			usage = event.Response.Usage
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return &models.LLMResponse{
		Content:   content.String(),
		ToolCalls: calls.finish(),
		Usage:     usage,
	}, nil
}

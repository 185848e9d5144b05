package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/cognis/pkg/models"
)

func writeAnthropicEvents(w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, event := range events {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(event), &head)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, event)
	}
}

type anthropicRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Stream    bool   `json:"stream"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	} `json:"messages"`
	Tools []struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"input_schema"`
	} `json:"tools"`
}

func TestAnthropicStreamsTextAndToolUse(t *testing.T) {
	var req anthropicRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeAnthropicEvents(w,
			`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-5","usage":{"input_tokens":12,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" now."}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"echo","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"text\":"}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"London\"}"}}`,
			`{"type":"content_block_stop","index":1}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":20}}`,
			`{"type":"message_stop"}`,
		)
	}))
	defer server.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", APIBase: server.URL + "/v1"})
	transcript := []models.ChatMessage{
		models.SystemMessage("first"),
		models.SystemMessage("second"),
		models.UserMessage("weather?"),
		models.AssistantToolCallMessage("looking", []models.ToolCall{{ID: "toolu_0", Name: "echo", Arguments: map[string]any{"text": "a"}}}),
		models.ToolMessage("a", "toolu_0"),
	}
	resp := p.Chat(context.Background(), "claude-sonnet-4-5", transcript, []models.ToolDefinition{echoToolDefinition()})

	if resp.Content != "Checking now." {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	call := resp.ToolCalls[0]
	if call.ID != "toolu_1" || call.Name != "echo" || call.Arguments["text"] != "London" {
		t.Fatalf("tool call = %+v", call)
	}
	if resp.Usage["input_tokens"] != int64(12) || resp.Usage["output_tokens"] != int64(20) {
		t.Fatalf("usage = %v", resp.Usage)
	}

	if req.Model != "claude-sonnet-4-5" || req.MaxTokens != DefaultAnthropicMaxTokens || !req.Stream {
		t.Fatalf("request = %+v", req)
	}
	if len(req.System) != 1 || req.System[0].Text != "first\n\nsecond" {
		t.Fatalf("system = %+v", req.System)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %+v", req.Messages)
	}
	assistant := req.Messages[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 2 ||
		assistant.Content[0]["type"] != "text" || assistant.Content[1]["type"] != "tool_use" || assistant.Content[1]["id"] != "toolu_0" {
		t.Fatalf("assistant message = %+v", assistant)
	}
	result := req.Messages[2]
	if result.Role != "user" || result.Content[0]["type"] != "tool_result" || result.Content[0]["tool_use_id"] != "toolu_0" {
		t.Fatalf("tool result message = %+v", result)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "echo" || req.Tools[0].Description != "Echo text back" {
		t.Fatalf("tools = %+v", req.Tools)
	}
	if _, ok := req.Tools[0].InputSchema["properties"].(map[string]any)["text"]; !ok {
		t.Fatalf("input schema = %v", req.Tools[0].InputSchema)
	}
}

func TestAnthropicHTTPError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens too large"}}`)
	}))
	defer server.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "k", APIBase: server.URL, MaxTokens: 999999})
	resp := p.Chat(context.Background(), "claude-x", []models.ChatMessage{models.UserMessage("hi")}, nil)

	if !strings.HasPrefix(resp.Content, "Error calling LLM: HTTP 400 ") || !strings.Contains(resp.Content, "max_tokens too large") {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage["http_status"] != http.StatusBadRequest {
		t.Fatalf("usage = %v", resp.Usage)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestAnthropicMissingKey(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{})
	if p.Name() != "anthropic" {
		t.Fatalf("name = %q", p.Name())
	}
	resp := p.Chat(context.Background(), "claude", nil, nil)
	if resp.Content != "Error calling LLM: missing API key for provider anthropic" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestAnthropicBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://api.anthropic.com", "https://api.anthropic.com/"},
		{"https://api.anthropic.com/v1", "https://api.anthropic.com/"},
		{"https://proxy.local/anthropic/v1/", "https://proxy.local/anthropic/"},
	}
	for _, tt := range tests {
		if got := anthropicBaseURL(tt.in); got != tt.want {
			t.Errorf("anthropicBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

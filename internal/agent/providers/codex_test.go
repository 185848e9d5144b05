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

func TestCodexStreamsResponseEvents(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"Authorization":      "Bearer tok",
			"OpenAI-Beta":        "responses=experimental",
			"Accept":             "text/event-stream",
			"originator":         "cognis",
			"chatgpt-account-id": "acct_1",
		}
		for header, want := range checks {
			if got := r.Header.Get(header); got != want {
				t.Errorf("%s = %q, want %q", header, got, want)
			}
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Errorf("decode body: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`{"type":"response.created"}`,
			`{"type":"response.output_text.delta","delta":"Sending "}`,
			`{"type":"response.output_text.delta","delta":"now"}`,
			`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"echo","arguments":""}}`,
			`{"type":"response.function_call_arguments.delta","call_id":"call_1","delta":"{\"text\":"}`,
			`{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"\"x\"}"}`,
			`not json`,
			`{"type":"response.completed","response":{"usage":{"input_tokens":7,"output_tokens":3}}}`,
		}
		for _, e := range events {
			fmt.Fprintf(w, "event: x\ndata: %s\n\n", e)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	p := NewCodexProvider(CodexConfig{AccessToken: "tok", AccountID: "acct_1", Endpoint: server.URL})
	transcript := []models.ChatMessage{
		models.SystemMessage("rules"),
		models.UserMessage("send it"),
		models.AssistantToolCallMessage("", []models.ToolCall{{ID: "call_0", Name: "echo", Arguments: map[string]any{"text": "y"}}}),
		models.ToolMessage("y", "call_0"),
	}
	resp := p.Chat(context.Background(), "openai-codex/gpt-5-codex", transcript, []models.ToolDefinition{echoToolDefinition()})

	if resp.Content != "Sending now" {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Name != "echo" || resp.ToolCalls[0].Arguments["text"] != "x" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.Usage["input_tokens"] != float64(7) {
		t.Fatalf("usage = %v", resp.Usage)
	}

	if payload["model"] != "gpt-5-codex" || payload["instructions"] != "rules" || payload["store"] != false || payload["parallel_tool_calls"] != true {
		t.Fatalf("payload = %v", payload)
	}
	input := payload["input"].([]any)
	if len(input) != 3 {
		t.Fatalf("input = %v", input)
	}
	user := input[0].(map[string]any)
	if user["role"] != "user" || user["content"].([]any)[0].(map[string]any)["type"] != "input_text" {
		t.Fatalf("user item = %v", user)
	}
	if call := input[1].(map[string]any); call["type"] != "function_call" || call["call_id"] != "call_0" || call["arguments"] != `{"text":"y"}` {
		t.Fatalf("function call item = %v", call)
	}
	if out := input[2].(map[string]any); out["type"] != "function_call_output" || out["call_id"] != "call_0" || out["output"] != "y" {
		t.Fatalf("function output item = %v", out)
	}
	tool := payload["tools"].([]any)[0].(map[string]any)
	if tool["type"] != "function" || tool["name"] != "echo" {
		t.Fatalf("tool = %v", tool)
	}
}

func TestCodexJSONAndErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        string
	}{
		{name: "json output_text", status: 200, contentType: "application/json", body: `{"output_text":"plain"}`, want: "plain"},
		{name: "http error", status: 401, contentType: "application/json", body: `{"detail":"expired"}`, want: `Error calling LLM: HTTP 401 {"detail":"expired"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := NewCodexProvider(CodexConfig{AccessToken: "tok", Endpoint: server.URL})
			resp := p.Chat(context.Background(), "gpt-5-codex", []models.ChatMessage{models.UserMessage("hi")}, nil)
			if resp.Content != tt.want {
				t.Fatalf("content = %q, want %q", resp.Content, tt.want)
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestCodexMissingToken(t *testing.T) {
	p := NewCodexProvider(CodexConfig{AccessToken: "  "})
	resp := p.Chat(context.Background(), "gpt-5-codex", nil, nil)
	if !strings.HasSuffix(resp.Content, "missing access token for provider openai_codex") {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestNormalizeCodexModel(t *testing.T) {
	for in, want := range map[string]string{
		"openai-codex/gpt-5-codex": "gpt-5-codex",
		"openai_codex/gpt-5-codex": "gpt-5-codex",
		"gpt-5-codex":              "gpt-5-codex",
	} {
		if got := normalizeCodexModel(in); got != want {
			t.Errorf("normalizeCodexModel(%q) = %q, want %q", in, got, want)
		}
	}
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/cognis/internal/backoff"
	"github.com/haasonsaas/cognis/pkg/models"
)

func fastRetry(p *retrier) {
	p.policy = backoff.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2}
}

func writeSSE(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, line := range lines {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func echoToolDefinition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "echo",
		Description: "Echo text back",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}
}

func TestOpenAICompatStreamsToolCalls(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "cognis" {
			t.Errorf("extra header = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		writeSSE(w,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Let me "}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"check."}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"echo","arguments":"{\"te"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"xt\":\"hi\"}"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"type":"function","function":{"name":"echo","arguments":"not json"}}]}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
		)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider(OpenAICompatConfig{
		Name:         "openai",
		APIKey:       "test-key",
		APIBase:      server.URL,
		ExtraHeaders: map[string]string{"X-Title": "cognis"},
	})
	transcript := []models.ChatMessage{
		models.SystemMessage("be brief"),
		models.UserMessage("say hi"),
	}
	resp := p.Chat(context.Background(), "gpt-4o", transcript, []models.ToolDefinition{echoToolDefinition()})

	if resp.Content != "Let me check." {
		t.Fatalf("content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 2 {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	first := resp.ToolCalls[0]
	if first.ID != "call_abc" || first.Name != "echo" || first.Arguments["text"] != "hi" {
		t.Fatalf("first call = %+v", first)
	}
	second := resp.ToolCalls[1]
	if second.ID != "call_1" || len(second.Arguments) != 0 {
		t.Fatalf("second call = %+v", second)
	}
	if resp.Usage["total_tokens"] != 15 {
		t.Fatalf("usage = %v", resp.Usage)
	}

	if body["stream"] != true || body["tool_choice"] != "auto" {
		t.Fatalf("request body = %v", body)
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("tools = %v", body["tools"])
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "echo" {
		t.Fatalf("tool = %v", fn)
	}
}

func TestOpenAICompatOmitsToolChoiceWithoutTools(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		writeSSE(w, `{"id":"1","choices":[{"index":0,"delta":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider(OpenAICompatConfig{Name: "openrouter", APIKey: "k", APIBase: server.URL})
	resp := p.Chat(context.Background(), "anthropic/claude-opus-4-5", []models.ChatMessage{models.UserMessage("hi")}, nil)
	if resp.Content != "ok" {
		t.Fatalf("content = %q", resp.Content)
	}
	if _, ok := body["tool_choice"]; ok {
		t.Fatalf("tool_choice sent without tools: %v", body)
	}
	if _, ok := body["tools"]; ok {
		t.Fatalf("tools sent without tools: %v", body)
	}
}

func TestOpenAICompatAcceptsPlainJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_9","type":"function","function":{"name":"echo","arguments":"{\"text\":\"x\"}"}}]},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer server.Close()

	p := NewOpenAICompatProvider(OpenAICompatConfig{Name: "github_copilot", APIKey: "k", APIBase: server.URL})
	resp := p.Chat(context.Background(), "gpt-4o", []models.ChatMessage{models.UserMessage("hi")}, []models.ToolDefinition{echoToolDefinition()})
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_9" || resp.ToolCalls[0].Arguments["text"] != "x" {
		t.Fatalf("tool calls = %+v (content %q)", resp.ToolCalls, resp.Content)
	}
	if resp.Usage["total_tokens"] != 5 {
		t.Fatalf("usage = %v", resp.Usage)
	}
}

func TestOpenAICompatRetries(t *testing.T) {
	tests := []struct {
		name         string
		failStatus   int
		failures     int
		wantAttempts int32
		wantPrefix   string
	}{
		{name: "server error recovers", failStatus: http.StatusInternalServerError, failures: 2, wantAttempts: 3, wantPrefix: "ok"},
		{name: "rate limit recovers", failStatus: http.StatusTooManyRequests, failures: 1, wantAttempts: 2, wantPrefix: "ok"},
		{name: "server error exhausted", failStatus: http.StatusBadGateway, failures: 5, wantAttempts: 3, wantPrefix: "Error calling LLM: HTTP 502"},
		{name: "bad request not retried", failStatus: http.StatusBadRequest, failures: 5, wantAttempts: 1, wantPrefix: "Error calling LLM: HTTP 400"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				if int(n) <= tt.failures {
					w.Header().Set("Content-Type", "text/plain")
					w.WriteHeader(tt.failStatus)
					fmt.Fprint(w, "upstream unhappy")
					return
				}
				writeSSE(w, `{"id":"1","choices":[{"index":0,"delta":{"content":"ok"}}]}`)
			}))
			defer server.Close()

			p := NewOpenAICompatProvider(OpenAICompatConfig{Name: "openai", APIKey: "k", APIBase: server.URL})
			fastRetry(&p.retry)
			resp := p.Chat(context.Background(), "gpt-4o", []models.ChatMessage{models.UserMessage("hi")}, nil)

			if !strings.HasPrefix(resp.Content, tt.wantPrefix) {
				t.Fatalf("content = %q, want prefix %q", resp.Content, tt.wantPrefix)
			}
			if got := attempts.Load(); got != tt.wantAttempts {
				t.Fatalf("attempts = %d, want %d", got, tt.wantAttempts)
			}
			if strings.HasPrefix(tt.wantPrefix, "Error") && resp.Usage["http_status"] != tt.failStatus {
				t.Fatalf("usage = %v", resp.Usage)
			}
		})
	}
}

func TestOpenAICompatMissingKey(t *testing.T) {
	p := NewOpenAICompatProvider(OpenAICompatConfig{Name: "openrouter"})
	resp := p.Chat(context.Background(), "m", []models.ChatMessage{models.UserMessage("hi")}, nil)
	if resp.Content != "Error calling LLM: missing API key for provider openrouter" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestToOpenAIMessages(t *testing.T) {
	transcript := []models.ChatMessage{
		models.SystemMessage("sys"),
		models.UserMessage("hi"),
		models.AssistantToolCallMessage("", []models.ToolCall{
			{ID: "a", Name: "echo", Arguments: map[string]any{"text": "x"}},
			{Name: "echo"},
		}),
		models.ToolMessage("x", "a"),
	}
	out := toOpenAIMessages(transcript)
	if len(out) != 4 {
		t.Fatalf("messages = %d", len(out))
	}
	if out[2].ToolCalls[0].Function.Arguments != `{"text":"x"}` || out[2].ToolCalls[1].ID != "call_1" {
		t.Fatalf("assistant tool calls = %+v", out[2].ToolCalls)
	}
	if out[2].ToolCalls[1].Function.Arguments != "{}" {
		t.Fatalf("empty arguments = %q", out[2].ToolCalls[1].Function.Arguments)
	}
	if out[3].Role != "tool" || out[3].ToolCallID != "a" {
		t.Fatalf("tool message = %+v", out[3])
	}
}

func TestToolCallBuffer(t *testing.T) {
	b := newToolCallBuffer()
	b.add(0, "x", "first", `{"a":`)
	b.add(0, "", "", `1}`)
	b.add(-1, "", "anon", "")
	b.add(2, "", "third", `[1,2]`)

	got := b.finish()
	if len(got) != 3 {
		t.Fatalf("calls = %+v", got)
	}
	if got[0].ID != "x" || got[0].Arguments["a"] != float64(1) {
		t.Fatalf("merged call = %+v", got[0])
	}
	if got[1].ID != "call_0" || got[1].Name != "anon" {
		t.Fatalf("anonymous call = %+v", got[1])
	}
	if got[2].ID != "call_2" || len(got[2].Arguments) != 0 {
		t.Fatalf("non-object arguments = %+v", got[2])
	}
	if newToolCallBuffer().finish() != nil {
		t.Fatal("empty buffer should finish to nil")
	}
}

func TestReadSSEData(t *testing.T) {
	input := "event: x\n: comment\ndata: one\n\ndata:two\n\ndata: \n\ndata: [DONE]\n\ndata: three\n"
	var got []string
	if err := readSSEData(strings.NewReader(input), func(payload string) bool {
		got = append(got, payload)
		return true
	}); err != nil {
		t.Fatalf("readSSEData: %v", err)
	}
	if strings.Join(got, ",") != "one,two" {
		t.Fatalf("payloads = %v", got)
	}
}

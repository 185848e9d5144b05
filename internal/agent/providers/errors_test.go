package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/pkg/models"
)

func TestFailoverReasonPredicates(t *testing.T) {
	tests := []struct {
		reason    FailoverReason
		retryable bool
		unusable  bool
	}{
		{FailoverRateLimit, true, false},
		{FailoverTimeout, true, false},
		{FailoverConnection, true, false},
		{FailoverServerError, true, false},
		{FailoverBilling, false, true},
		{FailoverAuth, false, true},
		{FailoverModelUnavailable, false, true},
		{FailoverInvalidRequest, false, false},
		{FailoverContentFilter, false, false},
		{FailoverUnknown, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			if got := tt.reason.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
			if got := tt.reason.ShouldFailover(); got != tt.unusable {
				t.Errorf("ShouldFailover = %v, want %v", got, tt.unusable)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected FailoverReason
	}{
		{"nil error", nil, FailoverUnknown},
		{"timeout", errors.New("request timeout"), FailoverTimeout},
		{"deadline exceeded", errors.New("context deadline exceeded"), FailoverTimeout},
		{"rate limit", errors.New("rate limit exceeded"), FailoverRateLimit},
		{"too many requests", errors.New("too many requests"), FailoverRateLimit},
		{"429 status", errors.New("HTTP 429"), FailoverRateLimit},
		{"unauthorized", errors.New("unauthorized"), FailoverAuth},
		{"invalid api key", errors.New("invalid api key"), FailoverAuth},
		{"billing", errors.New("billing issue"), FailoverBilling},
		{"quota exceeded", errors.New("quota exceeded"), FailoverBilling},
		{"content filter", errors.New("content_filter triggered"), FailoverContentFilter},
		{"content blocked", errors.New("content blocked by safety"), FailoverContentFilter},
		{"model not found", errors.New("model not found"), FailoverModelUnavailable},
		{"server error", errors.New("internal server error"), FailoverServerError},
		{"500 status", errors.New("HTTP 500"), FailoverServerError},
		{"connection refused", errors.New("dial tcp: connection refused"), FailoverConnection},
		{"unexpected eof", io.ErrUnexpectedEOF, FailoverConnection},
		{"canceled", context.Canceled, FailoverUnknown},
		{"unknown", errors.New("something went wrong"), FailoverUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.expected {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestProviderError(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewProviderError("anthropic", "claude-3-opus", cause).
		WithStatus(429).
		WithCode("rate_limit_error").
		WithRequestID("req-123")

	// Check error message contains relevant info
	errStr := err.Error()
	if errStr == "" {
		t.Error("Error() returned empty string")
	}

	// Check reason was classified
	if err.Reason != FailoverRateLimit {
		t.Errorf("Expected reason %v, got %v", FailoverRateLimit, err.Reason)
	}

	// Check fields are set
	if err.Provider != "anthropic" {
		t.Errorf("Expected provider anthropic, got %s", err.Provider)
	}
	if err.Model != "claude-3-opus" {
		t.Errorf("Expected model claude-3-opus, got %s", err.Model)
	}
	if err.Status != 429 {
		t.Errorf("Expected status 429, got %d", err.Status)
	}
	if err.Code != "rate_limit_error" {
		t.Errorf("Expected code rate_limit_error, got %s", err.Code)
	}
	if err.RequestID != "req-123" {
		t.Errorf("Expected request ID req-123, got %s", err.RequestID)
	}

	// Check Unwrap
	if err.Unwrap() != cause {
		t.Error("Unwrap() did not return cause")
	}

	// Check IsRetryable
	if !err.Reason.IsRetryable() {
		t.Error("Rate limit should be retryable")
	}
}

func TestGetProviderError(t *testing.T) {
	providerErr := NewProviderError("openai", "gpt-4", errors.New("test"))

	// Direct ProviderError
	got, ok := GetProviderError(providerErr)
	if !ok || got != providerErr {
		t.Error("GetProviderError should extract direct ProviderError")
	}

	// Regular error
	_, ok = GetProviderError(errors.New("regular"))
	if ok {
		t.Error("GetProviderError should return false for regular error")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", NewProviderError("anthropic", "claude", nil).WithStatus(429), true},
		{"bad key", NewProviderError("openai", "gpt-4", nil).WithStatus(401), false},
		{"timeout by message", errors.New("timeout exceeded"), true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReplyReason(t *testing.T) {
	tests := []struct {
		name string
		resp *models.LLMResponse
		want FailoverReason
	}{
		{"status in usage", agent.ErrorResponse("HTTP 402 pay up", map[string]any{"http_status": 402}), FailoverBilling},
		{"status beats message", agent.ErrorResponse("HTTP 404 quota", map[string]any{"http_status": 404}), FailoverModelUnavailable},
		{"unmapped status falls back to message", agent.ErrorResponse("HTTP 418 connection reset", map[string]any{"http_status": 418}), FailoverConnection},
		{"disabled slot", agent.ErrorResponse("missing API key for provider openai", nil), FailoverUnknown},
		{"message only", agent.ErrorResponse("rate limit reached", nil), FailoverRateLimit},
		{"nil reply", nil, FailoverUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replyReason(tt.resp); got != tt.want {
				t.Errorf("replyReason = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		status   int
		expected FailoverReason
	}{
		{401, FailoverAuth},
		{403, FailoverAuth},
		{402, FailoverBilling},
		{429, FailoverRateLimit},
		{400, FailoverInvalidRequest},
		{404, FailoverModelUnavailable},
		{500, FailoverServerError},
		{502, FailoverServerError},
		{503, FailoverServerError},
		{200, FailoverUnknown},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatusCode(tt.status); got != tt.expected {
				t.Errorf("classifyStatusCode(%d) = %v, want %v", tt.status, got, tt.expected)
			}
		})
	}
}

func TestProviderErrorDetail(t *testing.T) {
	tests := []struct {
		name      string
		err       *ProviderError
		want      string
		wantUsage map[string]any
	}{
		{
			name:      "http body",
			err:       NewProviderError("openai", "gpt-4o", errors.New("status 500")).WithStatus(500).WithBody(`{"error":"boom"}`),
			want:      `HTTP 500 {"error":"boom"}`,
			wantUsage: map[string]any{"http_status": 500},
		},
		{
			name:      "http message without body",
			err:       NewProviderError("openai", "gpt-4o", nil).WithStatus(401).WithMessage("bad key"),
			want:      "HTTP 401 bad key",
			wantUsage: map[string]any{"http_status": 401},
		},
		{
			name:      "transport failure",
			err:       NewProviderError("anthropic", "claude", errors.New("dial tcp: connection refused")),
			want:      "dial tcp: connection refused",
			wantUsage: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Detail(); got != tt.want {
				t.Errorf("Detail() = %q, want %q", got, tt.want)
			}
			usage := tt.err.Usage()
			if len(usage) != len(tt.wantUsage) || usage["http_status"] != tt.wantUsage["http_status"] {
				t.Errorf("Usage() = %v, want %v", usage, tt.wantUsage)
			}
		})
	}
}

func TestWithCodeKeepsStatusClassification(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", nil).WithStatus(503).WithCode("invalid_request_error")
	if err.Reason != FailoverServerError {
		t.Fatalf("reason = %v, want %v", err.Reason, FailoverServerError)
	}
	if !IsRetryable(err) {
		t.Fatal("503 must stay retryable")
	}

	coded := NewProviderError("bedrock", "m", errors.New("x")).WithCode("ThrottlingException")
	if coded.Reason != FailoverRateLimit {
		t.Fatalf("reason = %v, want %v", coded.Reason, FailoverRateLimit)
	}
}

func TestFailureResponse(t *testing.T) {
	resp := failure(NewProviderError("openai", "gpt", nil).WithStatus(400).WithBody("nope"))
	if resp.Content != "Error calling LLM: HTTP 400 nope" {
		t.Fatalf("content = %q", resp.Content)
	}
	if resp.Usage["http_status"] != 400 || resp.HasToolCalls() {
		t.Fatalf("unexpected reply %+v", resp)
	}

	plain := failure(errors.New("boom"))
	if plain.Content != "Error calling LLM: boom" {
		t.Fatalf("content = %q", plain.Content)
	}
}

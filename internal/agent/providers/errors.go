package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/pkg/models"
)

// FailoverReason is the class of a provider failure. The retrier uses it to
// decide whether to repeat a request; the fallback chain logs it when it
// moves on to the next member.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"           // 402, exhausted quota
	FailoverRateLimit        FailoverReason = "rate_limit"        // 429, throttling
	FailoverAuth             FailoverReason = "auth"              // 401, 403, bad key
	FailoverTimeout          FailoverReason = "timeout"
	FailoverConnection       FailoverReason = "connection"        // no response at all
	FailoverServerError      FailoverReason = "server_error"      // 5xx, overloaded
	FailoverInvalidRequest   FailoverReason = "invalid_request"   // 400
	FailoverModelUnavailable FailoverReason = "model_unavailable" // 404, unknown model
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether the same request to the same provider may
// succeed later.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverConnection, FailoverServerError:
		return true
	}
	return false
}

// ShouldFailover reports whether the failure belongs to the provider slot
// itself (credentials, billing, model availability), so other requests to
// it will fail the same way.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	}
	return false
}

// ProviderError is a structured failure from an LLM backend.
type ProviderError struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	// Body is the raw HTTP error body, when one was read.
	Body  string
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Detail is the text placed after "Error calling LLM: " in a failed reply.
// HTTP failures read "HTTP <status> <body>".
func (e *ProviderError) Detail() string {
	if e.Status != 0 {
		body := e.Body
		if body == "" {
			body = e.Message
		}
		return strings.TrimSpace(fmt.Sprintf("HTTP %d %s", e.Status, body))
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return string(e.Reason)
}

// Usage is the usage map reported alongside a failed reply.
func (e *ProviderError) Usage() map[string]any {
	if e.Status != 0 {
		return map[string]any{"http_status": e.Status}
	}
	return map[string]any{}
}

// NewProviderError creates a ProviderError classified from cause.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailoverUnknown,
	}

	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}

	return err
}

// WithStatus adds HTTP status to the error and reclassifies it.
func (e *ProviderError) WithStatus(status int) *ProviderError {
	e.Status = status
	e.Reason = classifyStatusCode(status)
	return e
}

// WithCode adds a provider-specific error code. An HTTP status already
// classified takes precedence over the code.
func (e *ProviderError) WithCode(code string) *ProviderError {
	e.Code = code
	if e.Status != 0 && e.Reason != FailoverUnknown {
		return e
	}
	if reason := classifyErrorCode(code); reason != FailoverUnknown {
		e.Reason = reason
	}
	return e
}

// WithRequestID adds the provider's request ID.
func (e *ProviderError) WithRequestID(id string) *ProviderError {
	e.RequestID = id
	return e
}

// WithMessage sets the error message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// WithBody records the raw HTTP error body.
func (e *ProviderError) WithBody(body string) *ProviderError {
	e.Body = body
	return e
}

// messageMarkers maps lower-cased fragments of an error message to a
// reason. Earlier entries win.
var messageMarkers = []struct {
	reason    FailoverReason
	fragments []string
}{
	{FailoverTimeout, []string{"timeout", "deadline exceeded", "etimedout"}},
	{FailoverConnection, []string{"connection refused", "connection reset", "broken pipe", "no such host"}},
	{FailoverRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{FailoverAuth, []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"}},
	{FailoverBilling, []string{"billing", "payment", "quota", "insufficient", "402"}},
	{FailoverContentFilter, []string{"content_filter", "content policy", "safety", "blocked"}},
	{FailoverModelUnavailable, []string{"model not found", "model_not_found", "does not exist", "unavailable"}},
	{FailoverServerError, []string{"internal server", "server error", "500", "502", "503", "504"}},
}

// ClassifyError derives a reason from err: context and network errors by
// type, everything else by message.
func ClassifyError(err error) FailoverReason {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return FailoverUnknown
	case errors.Is(err, context.DeadlineExceeded):
		return FailoverTimeout
	case errors.Is(err, io.ErrUnexpectedEOF):
		return FailoverConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailoverTimeout
		}
		return FailoverConnection
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) FailoverReason {
	msg = strings.ToLower(msg)
	for _, m := range messageMarkers {
		for _, frag := range m.fragments {
			if strings.Contains(msg, frag) {
				return m.reason
			}
		}
	}
	return FailoverUnknown
}

// replyReason classifies a failed reply. HTTP failures carry their status
// in the usage map; other failures are read from the content.
func replyReason(resp *models.LLMResponse) FailoverReason {
	if resp == nil {
		return FailoverUnknown
	}
	if status, ok := resp.Usage["http_status"].(int); ok && status != 0 {
		if reason := classifyStatusCode(status); reason != FailoverUnknown {
			return reason
		}
	}
	return classifyMessage(strings.TrimPrefix(resp.Content, agent.ErrorPrefix))
}

func classifyStatusCode(status int) FailoverReason {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	case status >= 500:
		return FailoverServerError
	default:
		return FailoverUnknown
	}
}

func classifyErrorCode(code string) FailoverReason {
	code = strings.ToLower(code)

	switch code {
	case "rate_limit_error", "rate_limit_exceeded", "throttlingexception":
		return FailoverRateLimit
	case "authentication_error", "invalid_api_key", "accessdeniedexception", "unrecognizedclientexception":
		return FailoverAuth
	case "billing_error", "insufficient_quota":
		return FailoverBilling
	case "model_not_found", "model_not_available", "resourcenotfoundexception", "modelnotreadyexception":
		return FailoverModelUnavailable
	case "content_policy_violation", "content_filter":
		return FailoverContentFilter
	case "server_error", "internal_error", "overloaded_error", "internalserverexception", "serviceunavailableexception":
		return FailoverServerError
	case "invalid_request_error", "validationexception":
		return FailoverInvalidRequest
	default:
		return FailoverUnknown
	}
}

// GetProviderError extracts a ProviderError from an error chain.
func GetProviderError(err error) (*ProviderError, bool) {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr, true
	}
	return nil, false
}

// IsRetryable reports whether err is worth another attempt: connection
// failures, timeouts, HTTP 429 and HTTP 5xx.
func IsRetryable(err error) bool {
	if providerErr, ok := GetProviderError(err); ok {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}

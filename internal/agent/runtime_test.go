package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/cognis/internal/memory"
	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/internal/sessions"
	"github.com/haasonsaas/cognis/pkg/models"
)

// scriptedProvider replays responses in order and repeats the last one.
type scriptedProvider struct {
	mu          sync.Mutex
	name        string
	responses   []*models.LLMResponse
	calls       int
	transcripts [][]models.ChatMessage
	tools       [][]models.ToolDefinition
}

func (p *scriptedProvider) Name() string {
	if p.name == "" {
		return "scripted"
	}
	return p.name
}

func (p *scriptedProvider) Chat(_ context.Context, _ string, transcript []models.ChatMessage, tools []models.ToolDefinition) *models.LLMResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, transcript)
	p.tools = append(p.tools, tools)
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	return p.responses[idx]
}

type staticResolver struct {
	provider LLMProvider
	err      error
}

func (r staticResolver) Resolve(string, string) (LLMProvider, error) {
	return r.provider, r.err
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo text back" }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
}
func (echoTool) Execute(_ context.Context, args map[string]any, _ *ToolContext) (string, error) {
	return RawStringArg(args, "text"), nil
}

type funcTool struct {
	name string
	fn   func(args map[string]any, tc *ToolContext) (string, error)
}

func (t funcTool) Name() string            { return t.name }
func (t funcTool) Description() string     { return t.name }
func (t funcTool) Schema() json.RawMessage { return nil }
func (t funcTool) Execute(_ context.Context, args map[string]any, tc *ToolContext) (string, error) {
	return t.fn(args, tc)
}

type recordedEvent struct {
	Type  string
	Attrs map[string]any
}

type fakeAudit struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (a *fakeAudit) Record(eventType string, attrs map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{Type: eventType, Attrs: attrs})
	return nil
}

func (a *fakeAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Type
	}
	return out
}

func toolCallResponse(calls ...models.ToolCall) *models.LLMResponse {
	return &models.LLMResponse{ToolCalls: calls, Usage: map[string]any{}}
}

func textResponse(content string) *models.LLMResponse {
	return &models.LLMResponse{Content: content, Usage: map[string]any{"output_tokens": float64(3)}}
}

func roles(transcript []models.ChatMessage) []models.Role {
	out := make([]models.Role, len(transcript))
	for i, m := range transcript {
		out[i] = m.Role
	}
	return out
}

func TestRunToolThenAnswer(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(models.ToolCall{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "x"}}),
		textResponse("final answer"),
	}}
	tools := NewToolRegistry()
	tools.Register(echoTool{})
	audit := &fakeAudit{}
	rt := NewRuntime(staticResolver{provider: provider}, tools, RuntimeOptions{Audit: audit})

	result, err := rt.Run(context.Background(), "please echo x", Settings{}, RunMetadata{ClientID: "c1", TaskID: "t1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "final answer" {
		t.Fatalf("content = %q", result.Content)
	}
	want := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant}
	got := roles(result.Transcript)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("roles = %v, want %v", got, want)
	}
	if result.Transcript[3].Content != "x" || result.Transcript[3].ToolCallID != "call-1" {
		t.Fatalf("tool message = %+v", result.Transcript[3])
	}
	if !result.Transcript[2].HasToolCalls() {
		t.Fatal("assistant message should carry the tool call")
	}
	if result.Usage["output_tokens"] != float64(3) {
		t.Fatalf("usage = %v", result.Usage)
	}
	if len(provider.tools[0]) != 1 || provider.tools[0][0].Name != "echo" {
		t.Fatalf("provider saw tools %+v", provider.tools[0])
	}
	if fmt.Sprint(audit.types()) != fmt.Sprint([]string{EventToolStarted, EventToolSucceeded}) {
		t.Fatalf("audit events = %v", audit.types())
	}
	succeeded := audit.events[1].Attrs
	if succeeded["client_id"] != "c1" || succeeded["task_id"] != "t1" || succeeded["tool_name"] != "echo" {
		t.Fatalf("succeeded attrs = %v", succeeded)
	}
	if succeeded["output_chars"] != 1 || succeeded["input_chars"] != len(`{"text":"x"}`) {
		t.Fatalf("char counts = %v", succeeded)
	}
}

func TestRunGuardrailReplacesUnverifiedClaim(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		textResponse("Done, text sent successfully to your wife."),
	}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{})

	result, err := rt.Run(context.Background(), "Send a text to my wife", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != GuardrailMessage {
		t.Fatalf("content = %q", result.Content)
	}
	if provider.calls != 2 {
		t.Fatalf("provider calls = %d, want 2", provider.calls)
	}
	second := provider.transcripts[1]
	last := second[len(second)-1]
	if last.Role != models.RoleSystem || last.Content != guardrailRetryNote {
		t.Fatalf("retry note missing, last message = %+v", last)
	}
}

func TestRunGuardrailAcceptsCorrectedReply(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		textResponse("Done, message sent."),
		textResponse("I can't text anyone from here."),
	}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{})
	result, err := rt.Run(context.Background(), "text my brother hello", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "I can't text anyone from here." {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestRunGuardrailSkippedAfterToolExecution(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(models.ToolCall{ID: "a", Name: "echo", Arguments: map[string]any{"text": "sms queued"}}),
		textResponse("Done, text sent."),
	}}
	tools := NewToolRegistry()
	tools.Register(echoTool{})
	rt := NewRuntime(staticResolver{provider: provider}, tools, RuntimeOptions{})
	result, err := rt.Run(context.Background(), "send a text to mom", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "Done, text sent." {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestRunStopsAfterMaxIterations(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(models.ToolCall{ID: "loop", Name: "echo", Arguments: map[string]any{"text": "again"}}),
	}}
	tools := NewToolRegistry()
	tools.Register(echoTool{})
	rt := NewRuntime(staticResolver{provider: provider}, tools, RuntimeOptions{})

	result, err := rt.Run(context.Background(), "loop forever", Settings{MaxToolIterations: 3}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != TimeoutMessage {
		t.Fatalf("content = %q", result.Content)
	}
	if provider.calls != 3 {
		t.Fatalf("provider calls = %d, want 3", provider.calls)
	}
	last := result.Transcript[len(result.Transcript)-1]
	if last.Role != models.RoleAssistant || last.Content != TimeoutMessage {
		t.Fatalf("last message = %+v", last)
	}
}

func TestRunNegativeIterationsStillCallsOnce(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{textResponse("hi")}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{})
	result, err := rt.Run(context.Background(), "hello", Settings{MaxToolIterations: -4}, RunMetadata{})
	if err != nil || result.Content != "hi" || provider.calls != 1 {
		t.Fatalf("result = %+v, err = %v, calls = %d", result, err, provider.calls)
	}
}

func TestRunUnknownToolKeepsLooping(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(models.ToolCall{ID: "u", Name: "teleport"}),
		textResponse("sorry"),
	}}
	audit := &fakeAudit{}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{Audit: audit})
	result, err := rt.Run(context.Background(), "beam me up", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.Transcript[3].Content; got != "Error: Tool 'teleport' not found" {
		t.Fatalf("tool output = %q", got)
	}
	if len(audit.types()) != 0 {
		t.Fatalf("unknown tools should not be audited: %v", audit.types())
	}
}

func TestRunToolFailuresDoNotAbort(t *testing.T) {
	tools := NewToolRegistry()
	tools.Register(funcTool{name: "boom", fn: func(map[string]any, *ToolContext) (string, error) {
		panic("kaboom")
	}})
	tools.Register(funcTool{name: "fail", fn: func(map[string]any, *ToolContext) (string, error) {
		return "", errors.New("upstream unavailable")
	}})
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(
			models.ToolCall{ID: "1", Name: "boom"},
			models.ToolCall{ID: "2", Name: "fail"},
		),
		textResponse("recovered"),
	}}
	audit := &fakeAudit{}
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	rt := NewRuntime(staticResolver{provider: provider}, tools, RuntimeOptions{Audit: audit, Metrics: metrics})

	result, err := rt.Run(context.Background(), "break things", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "recovered" {
		t.Fatalf("content = %q", result.Content)
	}
	if got := result.Transcript[3].Content; got != "Error executing tool 'boom': panic: kaboom" {
		t.Fatalf("panic output = %q", got)
	}
	if got := result.Transcript[4].Content; got != "Error executing tool 'fail': upstream unavailable" {
		t.Fatalf("failure output = %q", got)
	}
	want := []string{EventToolStarted, EventToolFailed, EventToolStarted, EventToolFailed}
	if fmt.Sprint(audit.types()) != fmt.Sprint(want) {
		t.Fatalf("events = %v", audit.types())
	}
	if audit.events[3].Attrs["error"] != "upstream unavailable" {
		t.Fatalf("failed attrs = %v", audit.events[3].Attrs)
	}
	if got := testutil.ToFloat64(metrics.ToolExecutions.WithLabelValues("fail", "failed")); got != 1 {
		t.Fatalf("failed tool metric = %v", got)
	}
	if got := testutil.ToFloat64(metrics.LLMRequests.WithLabelValues("scripted", "ok")); got != 2 {
		t.Fatalf("llm request metric = %v", got)
	}
}

func TestRunInvalidArgumentsReportedAsToolError(t *testing.T) {
	tools := NewToolRegistry()
	tools.Register(echoTool{})
	provider := &scriptedProvider{responses: []*models.LLMResponse{
		toolCallResponse(models.ToolCall{ID: "1", Name: "echo", Arguments: map[string]any{"text": 5.0}}),
		textResponse("ok"),
	}}
	rt := NewRuntime(staticResolver{provider: provider}, tools, RuntimeOptions{})
	result, err := rt.Run(context.Background(), "echo", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := result.Transcript[3].Content; !strings.HasPrefix(got, "Error executing tool 'echo': invalid arguments") {
		t.Fatalf("tool output = %q", got)
	}
}

func TestRunResolveError(t *testing.T) {
	rt := NewRuntime(staticResolver{err: errors.New("Unknown provider: nope")}, nil, RuntimeOptions{})
	if _, err := rt.Run(context.Background(), "hi", Settings{Provider: "nope"}, RunMetadata{}); err == nil {
		t.Fatal("expected resolve error")
	}
}

func TestRunProviderErrorIsFinalContent(t *testing.T) {
	provider := &scriptedProvider{responses: []*models.LLMResponse{ErrorResponse("HTTP 500 boom", nil)}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{})
	result, err := rt.Run(context.Background(), "hi", Settings{}, RunMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Content != "Error calling LLM: HTTP 500 boom" {
		t.Fatalf("content = %q", result.Content)
	}
}

type staticProfile string

func (p staticProfile) FormatForPrompt() (string, error) { return string(p), nil }

type failingConversations struct{}

func (failingConversations) Append(context.Context, sessions.Turn) error {
	return errors.New("disk full")
}

func TestBuildSystemPromptOrder(t *testing.T) {
	dir := t.TempDir()
	mem := memory.NewFileStore(filepath.Join(dir, "memory.json"))
	if _, err := mem.Remember("Dana likes jazz records", "user", []string{"music"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	summary := memory.NewSummaryManager(filepath.Join(dir, "summary.txt"), 0)
	if err := summary.RecordTurn("earlier question", "earlier answer"); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	rt := NewRuntime(staticResolver{}, nil, RuntimeOptions{
		Memory:  mem,
		Summary: summary,
		Profile: staticProfile("## User Profile\n- Name: Dana"),
	})

	prompt := rt.buildSystemPrompt(context.Background(), "Base prompt.", "play some jazz")
	if !strings.HasPrefix(prompt, "Base prompt.\n\n"+IdentityPolicy) {
		t.Fatalf("prompt does not start with base + identity policy:\n%s", prompt)
	}
	profileAt := strings.Index(prompt, "## User Profile")
	memoriesAt := strings.Index(prompt, "## Recalled Memories (relevant)")
	summaryAt := strings.Index(prompt, "## Session Summary")
	if profileAt < 0 || memoriesAt < profileAt || summaryAt < memoriesAt {
		t.Fatalf("blocks out of order (%d, %d, %d):\n%s", profileAt, memoriesAt, summaryAt, prompt)
	}
	if !strings.Contains(prompt, "- Dana likes jazz records") {
		t.Fatalf("recalled memory missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User: earlier question | Assistant: earlier answer") {
		t.Fatalf("summary missing:\n%s", prompt)
	}
}

func TestBuildSystemPromptMinimal(t *testing.T) {
	rt := NewRuntime(staticResolver{}, nil, RuntimeOptions{})
	got := rt.buildSystemPrompt(context.Background(), DefaultSystemPrompt, "hi")
	if got != DefaultSystemPrompt+"\n\n"+IdentityPolicy {
		t.Fatalf("prompt = %q", got)
	}
}

func TestPostProcessTurnSideEffects(t *testing.T) {
	dir := t.TempDir()
	mem := memory.NewFileStore(filepath.Join(dir, "memory.json"))
	summary := memory.NewSummaryManager(filepath.Join(dir, "summary.txt"), 0)
	conversations := sessions.NewFileStore(filepath.Join(dir, "conversations.json"))
	provider := &scriptedProvider{responses: []*models.LLMResponse{textResponse("Nice to meet you")}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{
		Memory:        mem,
		Summary:       summary,
		Conversations: conversations,
	})

	if _, err := rt.Run(context.Background(), "My name is Dana", Settings{}, RunMetadata{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	turns, err := conversations.List(context.Background())
	if err != nil || len(turns) != 1 {
		t.Fatalf("turns = %d, err = %v", len(turns), err)
	}
	if turns[0].Prompt != "My name is Dana" || turns[0].Response != "Nice to meet you" || len(turns[0].Transcript) != 3 {
		t.Fatalf("turn = %+v", turns[0])
	}

	entries, err := mem.List()
	if err != nil || len(entries) == 0 {
		t.Fatalf("expected extracted memory, got %d (%v)", len(entries), err)
	}
	if entries[0].Source != "agent_loop" {
		t.Fatalf("source = %q", entries[0].Source)
	}

	current, err := summary.Current()
	if err != nil || !strings.Contains(current, "User: My name is Dana | Assistant: Nice to meet you") {
		t.Fatalf("summary = %q (%v)", current, err)
	}
}

func TestPostProcessTurnToleratesStoreFailure(t *testing.T) {
	dir := t.TempDir()
	summary := memory.NewSummaryManager(filepath.Join(dir, "summary.txt"), 0)
	provider := &scriptedProvider{responses: []*models.LLMResponse{textResponse("ok")}}
	rt := NewRuntime(staticResolver{provider: provider}, nil, RuntimeOptions{
		Summary:       summary,
		Conversations: failingConversations{},
	})
	result, err := rt.Run(context.Background(), "hello", Settings{}, RunMetadata{})
	if err != nil || result.Content != "ok" {
		t.Fatalf("result = %+v, err = %v", result, err)
	}
	if current, _ := summary.Current(); current == "" {
		t.Fatal("summary should still be updated after a persistence failure")
	}
}

func TestSettingsNormalized(t *testing.T) {
	s := Settings{}.Normalized()
	if s.MaxToolIterations != 20 || s.Model != "anthropic/claude-opus-4-5" || s.SystemPrompt != DefaultSystemPrompt {
		t.Fatalf("defaults = %+v", s)
	}
	if got := (Settings{MaxToolIterations: -1}).Normalized().MaxToolIterations; got != 1 {
		t.Fatalf("negative iterations normalised to %d", got)
	}
}

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/cognis/internal/memory"
	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/internal/sessions"
	"github.com/haasonsaas/cognis/pkg/models"
)

// TimeoutMessage ends a run that used up its tool iterations.
const TimeoutMessage = "Stopped after max tool iterations"

const (
	defaultModel             = "anthropic/claude-opus-4-5"
	defaultMaxToolIterations = 20
)

// Settings selects the prompt, provider and model for a run.
type Settings struct {
	SystemPrompt      string
	Provider          string
	Model             string
	MaxToolIterations int
}

// Normalized fills defaults: the default model and prompt, and at least one
// iteration. A zero MaxToolIterations means the default of 20.
func (s Settings) Normalized() Settings {
	if s.MaxToolIterations == 0 {
		s.MaxToolIterations = defaultMaxToolIterations
	}
	if s.MaxToolIterations < 1 {
		s.MaxToolIterations = 1
	}
	if s.Model == "" {
		s.Model = defaultModel
	}
	if s.SystemPrompt == "" {
		s.SystemPrompt = DefaultSystemPrompt
	}
	return s
}

// MemoryStore is the part of the memory store the loop uses.
type MemoryStore interface {
	Recall(query string, max int) ([]memory.Entry, error)
	Remember(content, source string, tags []string) (memory.Entry, error)
}

// MemoryExtractor proposes memories from a finished turn.
type MemoryExtractor interface {
	Extract(prompt, response string) []memory.Candidate
}

// SummaryManager keeps the rolling session summary.
type SummaryManager interface {
	Current() (string, error)
	RecordTurn(prompt, response string) error
}

// ProfileSource renders the user profile block.
type ProfileSource interface {
	FormatForPrompt() (string, error)
}

// ConversationStore persists finished turns.
type ConversationStore interface {
	Append(ctx context.Context, turn sessions.Turn) error
}

// AuditRecorder receives tool lifecycle events.
type AuditRecorder interface {
	Record(eventType string, attrs map[string]any) error
}

// RuntimeOptions wires optional collaborators into the loop.
type RuntimeOptions struct {
	Workspace     string
	Memory        MemoryStore
	Extractor     MemoryExtractor
	Summary       SummaryManager
	Profile       ProfileSource
	Conversations ConversationStore
	Audit         AuditRecorder
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
	Logger        *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runtime runs the bounded LLM/tool loop.
type Runtime struct {
	resolver      ProviderResolver
	tools         *ToolRegistry
	workspace     string
	memory        MemoryStore
	extractor     MemoryExtractor
	summary       SummaryManager
	profile       ProfileSource
	conversations ConversationStore
	audit         AuditRecorder
	metrics       *observability.Metrics
	tracer        *observability.Tracer
	logger        *slog.Logger
	now           func() time.Time
}

// NewRuntime builds a runtime. A nil registry means no tools.
func NewRuntime(resolver ProviderResolver, tools *ToolRegistry, opts RuntimeOptions) *Runtime {
	if tools == nil {
		tools = NewToolRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "agent")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Extractor == nil {
		opts.Extractor = memory.NewHeuristicExtractor()
	}
	return &Runtime{
		resolver:      resolver,
		tools:         tools,
		workspace:     opts.Workspace,
		memory:        opts.Memory,
		extractor:     opts.Extractor,
		summary:       opts.Summary,
		profile:       opts.Profile,
		conversations: opts.Conversations,
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
		logger:        opts.Logger,
		now:           opts.Now,
	}
}

// Tools exposes the registry the runtime executes against.
func (r *Runtime) Tools() *ToolRegistry {
	return r.tools
}

// Run executes one user turn. The only error is a provider that cannot be
// resolved; every other failure is folded into the result content.
func (r *Runtime) Run(ctx context.Context, userPrompt string, settings Settings, meta RunMetadata) (*models.AgentResult, error) {
	settings = settings.Normalized()

	provider, err := r.resolver.Resolve(settings.Provider, settings.Model)
	if err != nil {
		return nil, err
	}
	r.logger.DebugContext(ctx, "resolved provider", "provider", provider.Name(), "model", settings.Model)

	transcript := []models.ChatMessage{
		models.SystemMessage(r.buildSystemPrompt(ctx, settings.SystemPrompt, userPrompt)),
		models.UserMessage(userPrompt),
	}
	tc := &ToolContext{Workspace: r.workspace, Metadata: meta}
	defs := r.tools.Definitions()

	var usage map[string]any
	executedTool := false
	retriedGuardrail := false

	for i := 0; i < settings.MaxToolIterations; i++ {
		resp := r.chat(ctx, provider, settings.Model, transcript, defs)
		usage = resp.Usage

		if !resp.HasToolCalls() {
			content := resp.Content
			if needsToolVerification(userPrompt, content, executedTool) {
				if !retriedGuardrail {
					retriedGuardrail = true
					transcript = append(transcript, models.SystemMessage(guardrailRetryNote))
					continue
				}
				content = GuardrailMessage
			}
			transcript = append(transcript, models.AssistantMessage(content))
			return r.finish(ctx, userPrompt, content, transcript, usage), nil
		}

		transcript = append(transcript, models.AssistantToolCallMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			executedTool = true
			output := r.executeTool(ctx, call, tc)
			transcript = append(transcript, models.ToolMessage(output, call.ID))
		}
	}

	transcript = append(transcript, models.AssistantMessage(TimeoutMessage))
	return r.finish(ctx, userPrompt, TimeoutMessage, transcript, usage), nil
}

func (r *Runtime) chat(ctx context.Context, provider LLMProvider, model string, transcript []models.ChatMessage, defs []models.ToolDefinition) *models.LLMResponse {
	ctx, span := r.tracer.TraceLLMRequest(ctx, provider.Name(), model)
	defer span.End()

	started := r.now()
	resp := provider.Chat(ctx, model, snapshot(transcript), defs)
	if resp == nil {
		resp = ErrorResponse(fmt.Sprintf("provider %s returned no response", provider.Name()), nil)
	}
	status := "ok"
	if IsErrorResponse(resp) {
		status = "error"
		observability.RecordError(span, fmt.Errorf("%s", resp.Content))
	}
	r.metrics.RecordLLMRequest(provider.Name(), status, r.now().Sub(started))
	return resp
}

func (r *Runtime) finish(ctx context.Context, userPrompt, content string, transcript []models.ChatMessage, usage map[string]any) *models.AgentResult {
	if usage == nil {
		usage = map[string]any{}
	}
	result := &models.AgentResult{
		Content:    content,
		Transcript: snapshot(transcript),
		Usage:      usage,
	}
	r.postProcessTurn(ctx, userPrompt, result)
	return result
}

// postProcessTurn persists the turn, stores extracted memories and updates
// the session summary. Each step is best effort.
func (r *Runtime) postProcessTurn(ctx context.Context, userPrompt string, result *models.AgentResult) {
	if r.conversations != nil {
		turn := sessions.Turn{
			CreatedAt:  r.now().UTC(),
			Prompt:     userPrompt,
			Response:   result.Content,
			Transcript: result.Transcript,
		}
		if err := r.conversations.Append(ctx, turn); err != nil {
			r.logger.WarnContext(ctx, "failed to persist conversation turn", "error", err)
		}
	}

	if r.memory != nil && r.extractor != nil {
		for _, candidate := range r.extractor.Extract(userPrompt, result.Content) {
			if _, err := r.memory.Remember(candidate.Content, "agent_loop", candidate.Tags); err != nil {
				r.logger.DebugContext(ctx, "memory extraction skipped", "error", err)
				break
			}
		}
	}

	if r.summary != nil {
		if err := r.summary.RecordTurn(userPrompt, result.Content); err != nil {
			r.logger.DebugContext(ctx, "session summary update skipped", "error", err)
		}
	}
}

func snapshot(transcript []models.ChatMessage) []models.ChatMessage {
	out := make([]models.ChatMessage, len(transcript))
	copy(out, transcript)
	return out
}

// Package app assembles the runtime from configuration: stores, providers,
// tools, the agent loop and the gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/cognis/internal/agent"
	"github.com/haasonsaas/cognis/internal/agent/providers"
	"github.com/haasonsaas/cognis/internal/audit"
	"github.com/haasonsaas/cognis/internal/bus"
	"github.com/haasonsaas/cognis/internal/config"
	"github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/mcp"
	"github.com/haasonsaas/cognis/internal/memory"
	"github.com/haasonsaas/cognis/internal/observability"
	"github.com/haasonsaas/cognis/internal/payments"
	"github.com/haasonsaas/cognis/internal/profile"
	"github.com/haasonsaas/cognis/internal/sessions"
	"github.com/haasonsaas/cognis/internal/voice"
	"github.com/haasonsaas/cognis/internal/workflow"
	"github.com/haasonsaas/cognis/pkg/models"
)

// SystemPrompt is the base prompt for CLI and gateway runs.
const SystemPrompt = "You are Cognis, an autonomous intelligence engine focused on precise execution. " +
	"Always present yourself only as Cognis and do not disclose underlying model/provider branding. " +
	"Use the workflow tool for daily briefs, goal execution loops, and relationship nudges when relevant. " +
	"Use the payments tool for guarded purchase flows and always enforce policy before execution."

const summaryMaxChars = 2000

// Options tune New. Everything is optional.
type Options struct {
	// ConfigPath is reported by Status and watched by the gateway.
	ConfigPath string
	// Workspace overrides agents.defaults.workspace.
	Workspace string
	// Version is stamped on traces.
	Version string
	Logger  *slog.Logger
	// Getenv selects the conversation backend; defaults to os.Getenv.
	Getenv func(string) string
}

// App owns every long-lived collaborator.
type App struct {
	Config     *config.Config
	ConfigPath string
	Workspace  string

	Bus                 *bus.MessageBus
	Cron                *cron.Service
	Memory              *memory.FileStore
	Summary             *memory.SummaryManager
	Profile             *profile.Store
	Conversations       sessions.Store
	ConversationBackend string
	Audit               *audit.Service
	Payments            *payments.Ledger
	Workflow            *workflow.Service
	Expander            *workflow.Expander
	MCP                 *mcp.Client
	Transcriber         voice.Transcriber

	Providers *providers.Registry
	Tools     *agent.ToolRegistry
	Runtime   *agent.Runtime

	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Tracer   *observability.Tracer

	logger         *slog.Logger
	shutdownTracer func(context.Context) error
}

// New builds the application for cfg. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workspace := cfg.Workspace()
	if strings.TrimSpace(opts.Workspace) != "" {
		workspace = config.ResolveWorkspace(opts.Workspace)
	}
	configPath := opts.ConfigPath
	if strings.TrimSpace(configPath) == "" {
		configPath = config.DefaultPath()
	}

	a := &App{
		Config:     cfg,
		ConfigPath: configPath,
		Workspace:  workspace,
		logger:     logger,
	}

	if cfg.Observability.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = observability.NewMetrics(a.Registry)
	}
	a.Tracer, a.shutdownTracer = observability.NewTracer(observability.TraceConfig{
		ServiceName:    "cognis",
		ServiceVersion: opts.Version,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})

	conversations, backend, err := sessions.Open(workspace, opts.Getenv)
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	a.Conversations = conversations
	a.ConversationBackend = backend

	a.Bus = bus.New()
	a.Cron = cron.NewService(
		cron.NewFileStore(filepath.Join(workspace, ".cognis", "cron", "jobs.json")),
		cron.WithLogger(logger.With("component", "cron")),
	)
	if _, created, err := a.Cron.EnsureJob(cron.DailyDigestName, cron.DailyDigestSeconds, cron.DailyDigestMessage); err != nil {
		logger.Warn("daily digest job not seeded", "error", err)
	} else if created {
		logger.Info("daily digest job seeded", "every_seconds", cron.DailyDigestSeconds)
	}

	a.Memory = memory.NewFileStore(filepath.Join(workspace, "memory", "memories.json"))
	a.Summary = memory.NewSummaryManager(filepath.Join(workspace, "memory", "session-summary.txt"), summaryMaxChars)
	a.Profile = profile.NewStore(filepath.Join(workspace, "profile.json"))
	a.Audit = audit.NewService(
		audit.NewFileStore(filepath.Join(workspace, ".cognis", "observability", "audit-events.json"), logger.With("component", "audit")),
		nil,
	)
	a.Payments = payments.NewLedger(
		payments.NewFileStore(filepath.Join(workspace, ".cognis", "payments", "ledger.json"), logger.With("component", "payments")),
		payments.WithAudit(a.Audit),
		payments.WithMetrics(a.Metrics),
		payments.WithLogger(logger.With("component", "payments")),
	)
	a.Workflow = &workflow.Service{
		Profile:       a.Profile,
		Memory:        a.Memory,
		Summary:       a.Summary,
		Conversations: a.Conversations,
	}
	a.Expander = workflow.NewExpander(a.Workflow, a.Bus, logger.With("component", "workflow"))
	a.MCP = mcp.NewClient(mcp.Config{BaseURL: cfg.MCP.BaseURL})
	a.Transcriber = buildTranscriber(cfg)

	a.Providers = providers.BuildFallbackRegistry(buildProviders(ctx, cfg, logger), logger.With("component", "providers"))
	a.Tools = a.buildTools()
	a.Runtime = agent.NewRuntime(providers.NewRouter(a.Providers), a.Tools, agent.RuntimeOptions{
		Workspace:     workspace,
		Memory:        a.Memory,
		Summary:       a.Summary,
		Profile:       a.Profile,
		Conversations: a.Conversations,
		Audit:         a.Audit,
		Metrics:       a.Metrics,
		Tracer:        a.Tracer,
		Logger:        logger.With("component", "agent"),
	})
	return a, nil
}

// Settings derives run settings from the agent defaults in cfg.
func Settings(cfg *config.Config) agent.Settings {
	if cfg == nil {
		cfg = config.Defaults()
	}
	d := cfg.Agents.Defaults
	return agent.Settings{
		SystemPrompt:      SystemPrompt,
		Provider:          d.Provider,
		Model:             d.Model,
		MaxToolIterations: d.MaxToolIterations,
	}.Normalized()
}

// Ask runs one CLI turn. Blank provider or model keep the configured
// defaults.
func (a *App) Ask(ctx context.Context, prompt, provider, model string) (*models.AgentResult, error) {
	settings := Settings(a.Config)
	if p := strings.TrimSpace(provider); p != "" {
		settings.Provider = p
	}
	if m := strings.TrimSpace(model); m != "" {
		settings.Model = m
	}
	return a.Runtime.Run(ctx, prompt, settings, agent.RunMetadata{ClientID: "cli", TaskID: uuid.NewString()})
}

// HandleCronJob expands a fired job onto the bus.
func (a *App) HandleCronJob(ctx context.Context, job cron.Job) {
	a.Metrics.RecordCronRuns(1)
	a.Expander.HandleJob(ctx, job)
}

// Close flushes traces and closes the conversation store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Conversations != nil {
		if err := a.Conversations.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close conversations: %w", err))
		}
	}
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

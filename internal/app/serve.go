package app

import (
	"context"
	"fmt"
	"time"

	"github.com/haasonsaas/cognis/internal/config"
	"github.com/haasonsaas/cognis/internal/cron"
	"github.com/haasonsaas/cognis/internal/gateway"
	"github.com/haasonsaas/cognis/internal/payments"
)

const shutdownTimeout = 15 * time.Second

// NewGateway builds the gateway over the app's collaborators. A port of 0
// or less keeps the configured port.
func (a *App) NewGateway(port int) *gateway.Server {
	gw := a.Config.Gateway
	if port > 0 {
		gw.Port = port
	}
	deps := gateway.Deps{
		Runner:      a.Runtime,
		Settings:    Settings(a.Config),
		Bus:         a.Bus,
		Transcriber: a.Transcriber,
		Payments:    a.Payments,
		Audit:       a.Audit,
		Metrics:     a.Metrics,
		Tracer:      a.Tracer,
		Logger:      a.logger,
	}
	if a.Registry != nil {
		deps.Gatherer = a.Registry
	}
	return gateway.New(gateway.Config{
		Host:      gw.Host,
		Port:      gw.Port,
		Workspace: a.Workspace,
		Token:     gw.Token,
		ChunkSize: gw.ChunkSize,
	}, deps)
}

// ServeGateway runs the gateway, the cron dispatcher and the config watcher
// until ctx is cancelled, then shuts them down.
func (a *App) ServeGateway(ctx context.Context, port int) error {
	srv := a.NewGateway(port)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	dispatcher := cron.NewDispatcher(a.Cron, a.HandleCronJob, cron.WithDispatcherLogger(a.logger.With("component", "cron_dispatcher")))
	dispatcher.Start(ctx)

	if err := config.Watch(ctx, a.ConfigPath, a.logger, func(cfg *config.Config) {
		srv.SetSettings(Settings(cfg))
		a.logger.Info("agent defaults reloaded", "provider", cfg.Agents.Defaults.Provider, "model", cfg.Agents.Defaults.Model)
	}); err != nil {
		a.logger.Warn("config watch disabled", "path", a.ConfigPath, "error", err)
	}

	a.logger.Info("gateway started", "addr", srv.Addr(), "workspace", a.Workspace)
	<-ctx.Done()

	dispatcher.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// Status is what the status command prints.
type Status struct {
	ConfigPath          string
	ConfigExists        bool
	Workspace           string
	Provider            string
	Model               string
	ConfiguredProviders []string
	ConversationBackend string
	CronJobs            int
	Memories            int
	Payments            payments.Summary
}

// Status gathers a snapshot of configuration and store sizes. Store read
// failures leave the corresponding count at zero.
func (a *App) Status(configExists bool) Status {
	st := Status{
		ConfigPath:          a.ConfigPath,
		ConfigExists:        configExists,
		Workspace:           a.Workspace,
		Provider:            a.Config.Agents.Defaults.Provider,
		Model:               a.Config.Agents.Defaults.Model,
		ConfiguredProviders: a.Config.Providers.ConfiguredSlots(),
		ConversationBackend: a.ConversationBackend,
	}
	if jobs, err := a.Cron.List(); err == nil {
		st.CronJobs = len(jobs)
	} else {
		a.logger.Debug("status: list cron jobs", "error", err)
	}
	if n, err := a.Memory.Count(); err == nil {
		st.Memories = n
	} else {
		a.logger.Debug("status: count memories", "error", err)
	}
	if summary, err := a.Payments.Summary(); err == nil {
		st.Payments = summary
	} else {
		a.logger.Debug("status: payments summary", "error", err)
	}
	return st
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/cognis/internal/app"
	"github.com/haasonsaas/cognis/internal/config"
	"github.com/haasonsaas/cognis/internal/payments"
)

// stdinFD is swapped in tests.
var stdinFD = func() int { return int(os.Stdin.Fd()) }

func runOnboard(cmd *cobra.Command, path string, overwrite bool) error {
	out := cmd.OutOrStdout()
	result, err := config.Onboard(path, overwrite)
	if err != nil {
		return fmt.Errorf("onboard failed: %w", err)
	}
	switch {
	case result.CreatedConfig:
		fmt.Fprintln(out, "Created config: "+result.ConfigPath)
	case result.OverwrittenConfig:
		fmt.Fprintln(out, "Overwrote config with defaults: "+result.ConfigPath)
	default:
		fmt.Fprintln(out, "Refreshed config with new defaults: "+result.ConfigPath)
	}
	fmt.Fprintln(out, "Workspace ready: "+result.WorkspacePath)
	return promptAPIKey(cmd, result.ConfigPath)
}

// promptAPIKey asks for an OpenRouter key without echo when stdin is a
// terminal and no provider is configured yet.
func promptAPIKey(cmd *cobra.Command, path string) error {
	fd := stdinFD()
	if !term.IsTerminal(fd) {
		return nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if len(cfg.Providers.ConfiguredSlots()) > 0 {
		return nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "OpenRouter API key (leave blank to skip): ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	key := strings.TrimSpace(string(raw))
	if key == "" {
		return nil
	}
	cfg.Providers.OpenRouter.APIKey = key
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Saved OpenRouter API key to "+path)
	return nil
}

func runAgent(cmd *cobra.Command, path, prompt, provider, model string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a, err := app.New(cmd.Context(), cfg, app.Options{ConfigPath: path, Version: version, Logger: slog.Default()})
	if err != nil {
		return err
	}
	defer a.Close(context.Background()) //nolint:errcheck

	result, err := a.Ask(cmd.Context(), prompt, provider, model)
	if err != nil {
		return fmt.Errorf("agent command failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Content)
	return nil
}

func runSchema(out io.Writer) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(schema))
	return err
}

func runStatus(ctx context.Context, out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, statErr := os.Stat(path)
	exists := !errors.Is(statErr, fs.ErrNotExist)

	a, err := app.New(ctx, cfg, app.Options{ConfigPath: path, Version: version, Logger: slog.Default()})
	if err != nil {
		return err
	}
	defer a.Close(context.Background()) //nolint:errcheck

	st := a.Status(exists)
	configured := map[string]bool{}
	for _, slot := range st.ConfiguredProviders {
		configured[slot] = true
	}

	fmt.Fprintf(out, "Config path: %s\n", st.ConfigPath)
	fmt.Fprintf(out, "Config exists: %t\n", st.ConfigExists)
	fmt.Fprintf(out, "Workspace: %s\n", st.Workspace)
	fmt.Fprintf(out, "Default provider: %s\n", st.Provider)
	fmt.Fprintf(out, "Default model: %s\n", st.Model)
	for _, slot := range config.Slots() {
		fmt.Fprintf(out, "Provider %s configured: %t\n", slot, configured[slot])
	}
	fmt.Fprintf(out, "Conversation store: %s\n", st.ConversationBackend)
	fmt.Fprintf(out, "Cron jobs: %d\n", st.CronJobs)
	fmt.Fprintf(out, "Memories: %d\n", st.Memories)
	fmt.Fprintf(out, "Payments: reserved $%.2f, captured $%.2f, available today $%.2f, this month $%.2f, transactions %d\n",
		payments.CentsToDollars(st.Payments.ReservedCents),
		payments.CentsToDollars(st.Payments.CapturedCents),
		payments.CentsToDollars(st.Payments.AvailableDailyCents),
		payments.CentsToDollars(st.Payments.AvailableMonthlyCents),
		st.Payments.TotalTransactions,
	)
	return nil
}

func runGateway(cmd *cobra.Command, path string, port int, workspace string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{ConfigPath: path, Workspace: workspace, Version: version, Logger: slog.Default()})
	if err != nil {
		return err
	}
	defer a.Close(context.Background()) //nolint:errcheck

	if port <= 0 {
		port = cfg.Gateway.Port
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Gateway starting on http://127.0.0.1:%d\n", port)
	fmt.Fprintln(out, "Endpoints: WS /ws?client_id=<id>, POST /upload, POST /transcribe, GET /files/{name}, GET /healthz, GET /metrics")
	return a.ServeGateway(ctx, port)
}

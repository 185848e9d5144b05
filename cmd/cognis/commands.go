package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/cognis/internal/config"
)

var configPath string

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cognis",
		Short:         "Cognis autonomous intelligence runtime",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $COGNIS_CONFIG or ~/.cognis/config.json)")

	rootCmd.AddCommand(
		buildOnboardCmd(),
		buildAgentCmd(),
		buildStatusCmd(),
		buildGatewayCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func buildOnboardCmd() *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Initialize or refresh config and workspace",
		Long: `Create the config file with defaults (or re-save it so new default keys
appear) and write the workspace templates. When run on a terminal with no
provider configured, offers to store an OpenRouter API key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnboard(cmd, resolveConfigPath(), overwrite)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing config with defaults")
	return cmd
}

func buildAgentCmd() *cobra.Command {
	var model, provider string
	cmd := &cobra.Command{
		Use:   "agent <prompt>",
		Short: "Send a prompt to the agent",
		Example: `  cognis agent "summarize my goals"
  cognis agent -p anthropic -m claude-sonnet-4-5 "plan tomorrow"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd, resolveConfigPath(), args[0], provider, model)
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Provider override")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show runtime and configuration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schema {
				return runSchema(cmd.OutOrStdout())
			}
			return runStatus(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath())
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "Print the config JSON schema and exit")
	return cmd
}

func buildGatewayCmd() *cobra.Command {
	var (
		port      int
		workspace string
	)
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the HTTP and WebSocket gateway",
		Long: `Serve uploads, transcription, payment policy, the audit dashboard and
streamed agent replies on /ws. Cron jobs are dispatched every 30 seconds and
agent defaults reload when the config file changes. SIGINT or SIGTERM shuts
the gateway down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd, resolveConfigPath(), port, workspace)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "Gateway port (default from config, 8787)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace override")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cognis %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

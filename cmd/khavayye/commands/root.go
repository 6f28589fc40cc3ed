// Package commands defines all Cobra CLI commands for the khavayye binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/taniishka21/KhavayyePeth/internal/audit"
	"github.com/taniishka21/KhavayyePeth/internal/config"
	"github.com/taniishka21/KhavayyePeth/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "khavayye",
		Short: "Khavayye AI — a Pune food guide grounded in a local restaurant dataset",
		Long: `Khavayye AI answers questions about restaurants in Pune.

Every reply is grounded in a local CSV dataset: restaurant descriptions are
embedded once ('khavayye index'), queries are matched against those embeddings,
and the model answers only from the retrieved context.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.khavayye/config.yaml).
See 'khavayye --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.khavayye/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIndexCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}

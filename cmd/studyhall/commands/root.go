// Package commands defines all Cobra CLI commands for the studyhall binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/studyhall-ai/studyhall-go/internal/audit"
	"github.com/studyhall-ai/studyhall-go/internal/config"
	"github.com/studyhall-ai/studyhall-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "studyhall",
		Short: "StudyHall — a retrieval-augmented assistant for course materials",
		Long: `StudyHall answers questions about ingested course materials.

Course transcripts are chunked, embedded, and indexed in a Qdrant vector
store. Questions are answered by an LLM that may run one semantic search
per query, with answers cited back to the course and lesson they came from.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.studyhall/config.yaml).
See 'studyhall --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load .env from the working directory. Real environment
			// variables keep precedence over .env entries.
			if err := godotenv.Load(); err == nil {
				log.Debug("loaded environment from .env")
			}

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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.studyhall/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewCoursesCmd(),
		NewVersionCmd(),
	)

	return root
}

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/studyhall-ai/studyhall-go/internal/ingestion"
	"github.com/studyhall-ai/studyhall-go/internal/logging"
	"github.com/studyhall-ai/studyhall-go/internal/orchestrator"
	"github.com/studyhall-ai/studyhall-go/internal/provider"
	"github.com/studyhall-ai/studyhall-go/internal/server"
	"github.com/studyhall-ai/studyhall-go/internal/tracing"
)

// NewServeCmd constructs the `studyhall serve` command, which starts the
// HTTP server exposing the Q&A API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var skipIngest bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the StudyHall HTTP server",
		Long: `Start the StudyHall HTTP server on localhost.

On startup, course transcripts in the docs folder (STUDYHALL_DOCS_DIR,
default ./docs) are ingested into the vector store. Already-indexed courses
are skipped, so restarts are cheap. The server then exposes POST /api/query
for questions and GET /api/courses for catalog stats.

Examples:
  studyhall serve
  studyhall serve --port 9000
  MODEL_PROVIDER=openai studyhall serve --skip-ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			index, store, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closeIndex()

			if !skipIngest {
				folder := docsFolder()
				if _, statErr := os.Stat(folder); statErr != nil {
					log.Info("startup ingestion skipped", slog.String("folder", folder), slog.Any("reason", statErr))
				} else {
					pipeline, pErr := ingestion.NewPipeline(index, newProcessor())
					if pErr != nil {
						return fmt.Errorf("serve: %w", pErr)
					}
					stats, iErr := pipeline.IngestFolder(ctx, folder)
					if iErr != nil {
						return fmt.Errorf("serve: startup ingestion failed: %w", iErr)
					}
					log.Info("startup ingestion complete",
						slog.Int("courses_added", stats.CoursesAdded),
						slog.Int("courses_skipped", stats.CoursesSkipped),
						slog.Int("chunks_added", stats.ChunksAdded),
					)
				}
			}

			registry, err := buildRegistry(index)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			sessions, closeSessions := openSessions(log)
			defer closeSessions()

			orch, err := orchestrator.New(&orchestrator.Config{
				ChatModel:        chatModel,
				Registry:         registry,
				Sessions:         sessions,
				MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise orchestrator: %w", err)
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
				server.NewQdrantPinger(store.Client()),
			}

			srv, err := server.New(orch, index, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   pingers,
				RateLimit: float64(getEnvInt("RATE_LIMIT", 0)),
				RateBurst: getEnvInt("RATE_BURST", 0),
				APIKey:    os.Getenv("STUDYHALL_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on")
	cmd.Flags().BoolVar(&skipIngest, "skip-ingest", false, "Skip the startup docs-folder ingestion")

	return cmd
}

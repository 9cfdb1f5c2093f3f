package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/studyhall-ai/studyhall-go/internal/ingestion"
	"github.com/studyhall-ai/studyhall-go/internal/logging"
)

// NewIngestCmd constructs the `studyhall ingest` command, which indexes
// course transcripts from a folder into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [folder]",
		Short: "Ingest course transcripts into the vector store",
		Long: `Chunk, embed, and index course transcript files into Qdrant.

Each .txt or .md file in the folder is parsed as one course: a metadata
header (title, link, instructor) followed by lesson sections. Courses that
are already indexed are skipped, so re-running ingest only picks up new
files.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  studyhall ingest
  studyhall ingest ./course-materials
  CHUNK_SIZE=1000 studyhall ingest ./docs`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			folder := docsFolder()
			if len(args) == 1 {
				folder = args[0]
			}

			index, _, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer closeIndex()

			pipeline, err := ingestion.NewPipeline(index, newProcessor())
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			log.Info("starting ingestion", slog.String("folder", folder))

			stats, err := pipeline.IngestFolder(ctx, folder)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Printf("Added %d courses (%d chunks), skipped %d already indexed",
				stats.CoursesAdded, stats.ChunksAdded, stats.CoursesSkipped)
			if stats.FilesFailed > 0 {
				fmt.Printf(", %d files failed", stats.FilesFailed)
			}
			fmt.Println()

			return nil
		},
	}

	return cmd
}

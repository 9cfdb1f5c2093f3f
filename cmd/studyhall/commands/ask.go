package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyhall-ai/studyhall-go/internal/logging"
	"github.com/studyhall-ai/studyhall-go/internal/orchestrator"
	"github.com/studyhall-ai/studyhall-go/internal/provider"
)

// NewAskCmd constructs the `studyhall ask` command, which answers a single
// question about the indexed course materials and prints the result.
func NewAskCmd() *cobra.Command {
	var sessionID string
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed course materials",
		Long: `Ask StudyHall a natural language question about the course materials.

The assistant may run one semantic search over the indexed transcripts
before answering. Pass --session to continue a previous conversation.

Examples:
  studyhall ask "what is covered in lesson 5 of the MCP course?"
  studyhall ask --sources "how does prompt caching work?"
  studyhall ask --session session_abc123 "can you expand on that?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			index, _, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer closeIndex()

			registry, err := buildRegistry(index)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			sessions, closeSessions := openSessions(log)
			defer closeSessions()

			orch, err := orchestrator.New(&orchestrator.Config{
				ChatModel: chatModel,
				Registry:  registry,
				Sessions:  sessions,
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise orchestrator: %w", err)
			}

			result, err := orch.Answer(ctx, args[0], sessionID)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)

			if showSources && len(result.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range result.Sources {
					if src.Link != "" {
						fmt.Printf("  - %s (%s)\n", src.Text, src.Link)
					} else {
						fmt.Printf("  - %s\n", src.Text)
					}
				}
			}

			if sessionID == "" {
				fmt.Printf("\n(session: %s — pass --session to follow up)\n", result.SessionID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue a previous conversation")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the course chunks the answer was grounded on")

	return cmd
}

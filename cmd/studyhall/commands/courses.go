package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/studyhall-ai/studyhall-go/internal/logging"
)

// NewCoursesCmd constructs the `studyhall courses` command, which lists the
// courses currently indexed in the vector store.
func NewCoursesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "List the indexed courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			index, _, closeIndex, err := buildIndex(log)
			if err != nil {
				return fmt.Errorf("courses: %w", err)
			}
			defer closeIndex()

			titles, err := index.CourseTitles(ctx)
			if err != nil {
				return fmt.Errorf("courses: %w", err)
			}

			fmt.Printf("%d courses indexed\n", len(titles))
			for _, title := range titles {
				fmt.Printf("  - %s\n", title)
			}

			return nil
		},
	}
}

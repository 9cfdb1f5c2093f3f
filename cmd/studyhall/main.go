// Command studyhall is the entry point for the StudyHall course-materials
// assistant. It provides a CLI interface (via Cobra) and an HTTP server
// exposing the retrieval-augmented Q&A API.
package main

import (
	"fmt"
	"os"

	"github.com/studyhall-ai/studyhall-go/cmd/studyhall/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package tracing wires the Langfuse observability callback into the
// eino callback chain so that every model call and tool invocation made
// while answering a question shows up as a trace.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/studyhall-ai/studyhall-go/internal/version"
)

// Setup builds the Langfuse callback handler when LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are present in the environment. Traces are tagged with
// the studyhall release so runs from different builds can be told apart.
// The returned flush function must be called before process exit so queued
// traces are not dropped. When the keys are absent all return values are
// zero and tracing stays off.
func Setup() (callbacks.Handler, func(), bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = "http://localhost:3000"
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "studyhall",
		Release:   version.Version,
	})

	return handler, flusher, true
}

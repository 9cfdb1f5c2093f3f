package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/studyhall-ai/studyhall-go/internal/chunker"
	"github.com/studyhall-ai/studyhall-go/internal/embedder"
	"github.com/studyhall-ai/studyhall-go/internal/rag"
	"github.com/studyhall-ai/studyhall-go/internal/session"
	"github.com/studyhall-ai/studyhall-go/internal/tools"
)

// getEnvOrDefault returns the value of the environment variable key, or
// fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the environment variable key, or
// fallback when unset or not a valid integer.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// buildIndex validates the embedding configuration, connects to Qdrant, and
// returns the vector index, the underlying store (for readiness probes), and
// a close function.
func buildIndex(log *slog.Logger) (*rag.VectorIndex, *rag.QdrantStore, func(), error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, nil, err //nolint:wrapcheck // validation errors are already descriptive
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)

	store, err := rag.NewQdrantStore(emb, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}

	index, err := rag.NewVectorIndex(store, getEnvInt("MAX_RESULTS", 0))
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	log.Info("qdrant index ready",
		slog.String("host", qdrantHost),
		slog.Int("port", qdrantPort),
		slog.String("embedding_backend", embBackend),
	)

	return index, store, func() { _ = store.Close() }, nil
}

// buildRegistry registers the search and outline tools over the given index.
func buildRegistry(index *rag.VectorIndex) (*tools.Registry, error) {
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewSearchTool(index)); err != nil {
		return nil, err //nolint:wrapcheck // registry errors carry the tool name
	}
	if err := registry.Register(tools.NewOutlineTool(index)); err != nil {
		return nil, err //nolint:wrapcheck // registry errors carry the tool name
	}
	return registry, nil
}

// openSessions opens the conversation history store. STUDYHALL_HISTORY_DB
// overrides the default SQLite path (~/.studyhall/sessions.db); set it to
// "memory" to keep history in process memory only. SQLite open failures fall
// back to the in-memory store with a warning so queries still work.
func openSessions(log *slog.Logger) (session.Store, func()) {
	maxExchanges := getEnvInt("STUDYHALL_MAX_HISTORY", session.DefaultMaxExchanges)

	dbPath := os.Getenv("STUDYHALL_HISTORY_DB")
	if dbPath == "memory" {
		log.Info("history: using in-memory store")
		return session.NewMemoryStore(maxExchanges), func() {}
	}
	if dbPath == "" {
		var err error
		dbPath, err = session.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, using in-memory store", slog.Any("error", err))
			return session.NewMemoryStore(maxExchanges), func() {}
		}
	}

	store, err := session.OpenSQLite(dbPath, maxExchanges)
	if err != nil {
		log.Warn("history: failed to open SQLite store, using in-memory store", slog.Any("error", err))
		return session.NewMemoryStore(maxExchanges), func() {}
	}

	log.Info("history: store opened", slog.String("path", dbPath))
	return store, func() { _ = store.Close() }
}

// newProcessor builds a transcript chunker from the CHUNK_SIZE and
// CHUNK_OVERLAP environment variables, falling back to the defaults.
func newProcessor() *chunker.Processor {
	return chunker.NewProcessor(getEnvInt("CHUNK_SIZE", 0), getEnvInt("CHUNK_OVERLAP", 0))
}

// docsFolder resolves the course transcript folder from STUDYHALL_DOCS_DIR,
// defaulting to ./docs.
func docsFolder() string {
	return getEnvOrDefault("STUDYHALL_DOCS_DIR", "docs")
}

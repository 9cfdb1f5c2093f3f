//go:build integration

package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
)

// constEmbedder returns a tiny fixed-size vector per text so integration
// tests do not need a live embedding backend.
type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1, 0, 0}
	}
	return out, nil
}

// newIntegrationStore connects to a locally running Qdrant instance.
//
// Prerequisites:
//
//	docker run -p 6334:6334 qdrant/qdrant
//
// Run with:
//
//	go test -tags=integration -run Test_QdrantStore_Integration ./internal/rag/
//
// In CI, set QDRANT_HOST / QDRANT_PORT if Qdrant is not on localhost:6334.
func newIntegrationStore(t *testing.T) *QdrantStore {
	t.Helper()

	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if v := os.Getenv("QDRANT_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}

	store, err := NewQdrantStore(constEmbedder{}, &QdrantConfig{
		Host:       host,
		Port:       port,
		VectorSize: 4,
	})
	if err != nil {
		t.Fatalf("connect to Qdrant at %s:%d: %v", host, port, err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Qdrant not reachable at %s:%d: %v\n\nStart it with:\n  docker run -p 6334:6334 qdrant/qdrant", host, port, err)
	}

	return store
}

// freshCollection returns a collection name no prior run has touched,
// emulating a first boot against an empty Qdrant instance.
func freshCollection(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString()[:8])
}

// Test_QdrantStore_Integration_ReadsBeforeFirstUpsert verifies that reads
// against a collection that has never been created behave as misses rather
// than server errors. Collections are created lazily on first upsert, and
// the first course added on a fresh instance is looked up before anything
// has been upserted.
func Test_QdrantStore_Integration_ReadsBeforeFirstUpsert(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	collection := freshCollection("catalog")

	match, err := store.Get(ctx, collection, "MCP Basics")
	if err != nil {
		t.Fatalf("Get on nonexistent collection: %v", err)
	}
	if match != nil {
		t.Errorf("Get on nonexistent collection: expected nil match, got %+v", match)
	}

	matches, err := store.Query(ctx, collection, "introduction", nil, 5)
	if err != nil {
		t.Fatalf("Query on nonexistent collection: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Query on nonexistent collection: expected no matches, got %d", len(matches))
	}

	ids, err := store.IDs(ctx, collection)
	if err != nil {
		t.Fatalf("IDs on nonexistent collection: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("IDs on nonexistent collection: expected none, got %v", ids)
	}
}

// Test_QdrantStore_Integration_FirstUpsertRoundTrip verifies the full
// first-boot sequence: miss, upsert (creating the collection), then hit.
func Test_QdrantStore_Integration_FirstUpsertRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	collection := freshCollection("catalog")

	if match, err := store.Get(ctx, collection, "MCP Basics"); err != nil || match != nil {
		t.Fatalf("expected miss before first upsert, got match=%+v err=%v", match, err)
	}

	err := store.Upsert(ctx, collection, []Point{
		{ID: "MCP Basics", Text: "MCP Basics", Payload: map[string]any{"course_link": "https://example.com/mcp"}},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	match, err := store.Get(ctx, collection, "MCP Basics")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if match == nil {
		t.Fatal("Get after upsert: expected a match")
	}
	if match.ID != "MCP Basics" {
		t.Errorf("match ID: got %q", match.ID)
	}
}

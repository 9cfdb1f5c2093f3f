// Package rag implements the retrieval layer for course materials: a
// dual-collection vector index (course catalog + content chunks) built on an
// embedding-capable similarity-search store. Concrete stores (Qdrant,
// in-memory) satisfy the Store interface so the tool and orchestrator layers
// never depend on a specific backend.
package rag

import (
	"context"
)

// Point is a unit of text upserted into a store collection.
type Point struct {
	// ID is the logical identifier for this point, unique within its
	// collection (course title for catalog entries, "title#index" for chunks).
	ID string

	// Text is the content that is embedded and searched.
	Text string

	// Payload holds filterable sidecar fields (course_title, lesson_number,
	// chunk_index) and opaque metadata (links, lesson JSON).
	Payload map[string]any
}

// Match is one ranked result from a similarity query.
type Match struct {
	// ID is the logical identifier of the matched point.
	ID string

	// Text is the stored content of the matched point.
	Text string

	// Payload is the stored sidecar data of the matched point.
	Payload map[string]any

	// Distance is the semantic distance from the query; results are ordered
	// by ascending distance.
	Distance float32
}

// Filter is a set of exact-match payload conditions combined with AND.
// A nil or empty filter matches every point.
type Filter map[string]any

// Store is the interface for an embedding-capable similarity-search backend.
// Implementations embed text on both the upsert and query paths so callers
// only ever deal in text. Implementations must be safe to call from multiple
// goroutines.
type Store interface {
	// Upsert stores or replaces the given points in a collection, creating
	// the collection on first use.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Query returns the limit nearest points to the query text that satisfy
	// the filter, ordered by ascending distance. A collection that has not
	// been created yet yields no matches, not an error.
	Query(ctx context.Context, collection, query string, filter Filter, limit int) ([]Match, error)

	// Get fetches a single point by its logical ID, or nil if absent.
	// Lookups against a collection that has not been created yet are
	// misses, not errors.
	Get(ctx context.Context, collection, id string) (*Match, error)

	// IDs lists the logical IDs of every point in a collection. A collection
	// that has not been created yet lists as empty.
	IDs(ctx context.Context, collection string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

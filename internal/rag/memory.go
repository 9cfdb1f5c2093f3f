package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore implements Store entirely in process memory. It is used in
// tests and for single-process setups where running Qdrant is not worth the
// overhead. Vectors are compared with cosine distance.
type MemoryStore struct {
	// embedder converts text to vectors for storage and querying.
	embedder Embedder

	// mu guards collections.
	mu sync.RWMutex

	// collections maps collection name to its stored entries keyed by
	// logical ID.
	collections map[string]map[string]memoryEntry

	// order preserves insertion order per collection so repeat queries on
	// unchanged data return a stable ordering for tied distances.
	order map[string][]string
}

// memoryEntry is one stored point plus its embedding.
type memoryEntry struct {
	point  Point
	vector []float32
}

// NewMemoryStore constructs an empty MemoryStore around the given embedder.
func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder:    embedder,
		collections: make(map[string]map[string]memoryEntry),
		order:       make(map[string][]string),
	}
}

// Upsert embeds and stores the given points.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	texts := make([]string, len(points))
	for i, p := range points {
		texts[i] = p.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("memory store: embedding failed: %w", err)
	}
	if len(vectors) != len(points) {
		return fmt.Errorf("memory store: expected %d embeddings, got %d", len(points), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]memoryEntry)
		s.collections[collection] = coll
	}
	for i, p := range points {
		if _, exists := coll[p.ID]; !exists {
			s.order[collection] = append(s.order[collection], p.ID)
		}
		coll[p.ID] = memoryEntry{point: p, vector: vectors[i]}
	}
	return nil
}

// Query embeds the query and returns the limit nearest stored points that
// satisfy the filter, ordered by ascending cosine distance.
func (s *MemoryStore) Query(ctx context.Context, collection, query string, filter Filter, limit int) ([]Match, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("memory store: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("memory store: embedder returned no vector for query")
	}
	qv := vectors[0]

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, id := range s.order[collection] {
		entry := s.collections[collection][id]
		if !payloadMatches(entry.point.Payload, filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       entry.point.ID,
			Text:     entry.point.Text,
			Payload:  entry.point.Payload,
			Distance: cosineDistance(qv, entry.vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Get fetches a single point by its logical ID, or nil if absent.
func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return &Match{ID: entry.point.ID, Text: entry.point.Text, Payload: entry.point.Payload}, nil
}

// IDs lists the logical IDs stored in a collection in insertion order.
func (s *MemoryStore) IDs(_ context.Context, collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order[collection]))
	copy(ids, s.order[collection])
	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// payloadMatches reports whether payload satisfies every filter condition.
func payloadMatches(payload map[string]any, filter Filter) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// cosineDistance returns 1 - cosine similarity of a and b.
// Mismatched or zero-magnitude vectors report the maximum distance.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

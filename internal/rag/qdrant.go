package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payload keys shared by every point written through QdrantStore.
const (
	payloadID   = "id"
	payloadText = "text"
)

// scrollPageSize bounds a single IDs listing. The catalog holds one point per
// course, so a single page is plenty.
const scrollPageSize = 4096

// pointNamespace is the UUID namespace for deriving deterministic Qdrant
// point IDs from logical string IDs. Qdrant only accepts UUID or integer
// point IDs, so logical IDs (course titles, "title#index") are hashed.
var pointNamespace = uuid.MustParse("7b1d0f3c-55a1-4f6e-9f4e-2a9c1d8e6b42")

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// VectorSize is the dimensionality of the stored embeddings.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance. Text is embedded
// through the configured Embedder on both the upsert and query paths.
// Collections are created lazily on first upsert.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// embedder converts text to vectors for storage and querying.
	embedder Embedder

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu guards ensured.
	mu sync.Mutex

	// ensured records collections already verified to exist.
	ensured map[string]bool
}

// NewQdrantStore creates a QdrantStore using the given embedder for
// text-to-vector conversion.
func NewQdrantStore(embedder Embedder, cfg *QdrantConfig) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("qdrant: embedder must not be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		cfg:      cfg,
		ensured:  make(map[string]bool),
	}, nil
}

// Client returns the underlying Qdrant gRPC client, used by readiness probes.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", collection, err)
		}
	}

	s.ensured[collection] = true
	return nil
}

// pointID derives the deterministic Qdrant UUID for a logical ID.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}

// Upsert embeds and stores the given points, creating the collection on
// first use.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	texts := make([]string, len(points))
	for i, p := range points {
		texts[i] = p.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("qdrant: embedding failed: %w", err)
	}
	if len(vectors) != len(points) {
		return fmt.Errorf("qdrant: expected %d embeddings, got %d", len(points), len(vectors))
	}

	qp := make([]*qdrant.PointStruct, 0, len(points))
	for i, p := range points {
		payload := map[string]any{
			payloadID:   p.ID,
			payloadText: p.Text,
		}
		for k, v := range p.Payload {
			payload[k] = v
		}
		qp = append(qp, &qdrant.PointStruct{
			Id:      pointID(p.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qp,
	}); err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Query embeds the query text and performs a filtered cosine similarity
// search, returning matches ordered by ascending distance.
// Querying a collection that has not been created yet returns no matches.
func (s *QdrantStore) Query(ctx context.Context, collection, query string, filter Filter, limit int) ([]Match, error) {
	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("qdrant: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("qdrant: embedder returned no vector for query")
	}

	lim := uint64(limit) //nolint:gosec // limit is a small positive config value
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vectors[0]...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := buildFilter(filter); qf != nil {
		req.Filter = qf
	}

	results, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		// Qdrant reports cosine similarity as a score; convert to a distance
		// so callers always sort ascending.
		matches = append(matches, matchFromPayload(r.Payload, 1-r.Score))
	}
	return matches, nil
}

// buildFilter converts a Filter to Qdrant must-match conditions.
func buildFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		switch val := v.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(k, val))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(k, int64(val)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(k, val))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(k, val))
		}
	}
	return &qdrant.Filter{Must: conditions}
}

// collectionExists reports whether the collection exists, skipping the
// server round trip when a prior call already ensured it.
func (s *QdrantStore) collectionExists(ctx context.Context, collection string) (bool, error) {
	s.mu.Lock()
	ensured := s.ensured[collection]
	s.mu.Unlock()
	if ensured {
		return true, nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Get fetches a single point by its logical ID, or nil if absent.
// Collections are created lazily on first upsert, so a lookup before any
// upsert is a miss, not an error.
func (s *QdrantStore) Get(ctx context.Context, collection, id string) (*Match, error) {
	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: get %q failed: %w", id, err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	m := matchFromPayload(points[0].Payload, 0)
	return &m, nil
}

// IDs lists the logical IDs stored in a collection. Collections that do not
// exist yet list as empty.
func (s *QdrantStore) IDs(ctx context.Context, collection string) ([]string, error) {
	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	limit := uint32(scrollPageSize)
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
	}

	ids := make([]string, 0, len(points))
	for _, p := range points {
		if v, ok := p.Payload[payloadID]; ok {
			ids = append(ids, v.GetStringValue())
		}
	}
	return ids, nil
}

// Ping checks Qdrant reachability via its native health check RPC.
// Used by the server's readiness probe.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// matchFromPayload rebuilds a Match from a stored Qdrant payload.
func matchFromPayload(payload map[string]*qdrant.Value, distance float32) Match {
	m := Match{
		Distance: distance,
		Payload:  make(map[string]any),
	}
	for k, v := range payload {
		switch k {
		case payloadID:
			m.ID = v.GetStringValue()
		case payloadText:
			m.Text = v.GetStringValue()
		default:
			switch v.GetKind().(type) {
			case *qdrant.Value_IntegerValue:
				m.Payload[k] = int(v.GetIntegerValue())
			case *qdrant.Value_BoolValue:
				m.Payload[k] = v.GetBoolValue()
			case *qdrant.Value_DoubleValue:
				m.Payload[k] = v.GetDoubleValue()
			default:
				m.Payload[k] = v.GetStringValue()
			}
		}
	}
	return m
}

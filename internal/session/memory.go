package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. History does not survive restarts;
// it is the default for single-host deployments and for tests.
type MemoryStore struct {
	// maxExchanges caps retained history per session.
	maxExchanges int

	mu       sync.RWMutex
	sessions map[string][]Exchange
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a MemoryStore retaining at most maxExchanges
// exchanges per session. maxExchanges <= 0 uses DefaultMaxExchanges.
func NewMemoryStore(maxExchanges int) *MemoryStore {
	if maxExchanges <= 0 {
		maxExchanges = DefaultMaxExchanges
	}
	return &MemoryStore{
		maxExchanges: maxExchanges,
		sessions:     make(map[string][]Exchange),
	}
}

// NewSession allocates a fresh session and returns its ID.
func (s *MemoryStore) NewSession(_ context.Context) (string, error) {
	id := newSessionID()
	s.mu.Lock()
	s.sessions[id] = nil
	s.mu.Unlock()
	return id, nil
}

// AddExchange records one exchange, evicting the oldest when the window is
// full. Unknown session IDs are created implicitly.
func (s *MemoryStore) AddExchange(_ context.Context, sessionID, question, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.sessions[sessionID], Exchange{
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now(),
	})
	if len(history) > s.maxExchanges {
		history = history[len(history)-s.maxExchanges:]
	}
	s.sessions[sessionID] = history
	return nil
}

// Recent returns the retained exchanges for the session, oldest-first.
func (s *MemoryStore) Recent(_ context.Context, sessionID string) ([]Exchange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.sessions[sessionID]
	out := make([]Exchange, len(history))
	copy(out, history)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

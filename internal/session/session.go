// Package session tracks per-conversation history for the assistant. Each
// session holds a bounded window of question/answer exchanges that is
// rendered into the model's system prompt on follow-up queries, so the
// assistant can resolve references like "tell me more about that".
package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxExchanges is the number of most-recent exchanges retained per
// session when no limit is configured.
const DefaultMaxExchanges = 2

// Exchange is one completed question/answer pair.
type Exchange struct {
	// Question is the user's message.
	Question string
	// Answer is the assistant's response.
	Answer string
	// CreatedAt is when the exchange was recorded.
	CreatedAt time.Time
}

// Store persists and retrieves conversation history keyed by session ID.
// Implementations must be safe for concurrent use and must retain at most
// their configured number of most-recent exchanges per session.
type Store interface {
	// NewSession allocates a fresh session and returns its ID.
	NewSession(ctx context.Context) (string, error)
	// AddExchange records one completed exchange. Unknown session IDs are
	// created implicitly so clients may mint their own.
	AddExchange(ctx context.Context, sessionID, question, answer string) error
	// Recent returns the retained exchanges for the session, oldest-first.
	// An unknown session yields an empty slice, not an error.
	Recent(ctx context.Context, sessionID string) ([]Exchange, error)
	// Close releases any resources held by the store.
	Close() error
}

// newSessionID mints a globally unique session identifier.
func newSessionID() string {
	return "session_" + uuid.NewString()
}

// Transcript renders exchanges as the plain-text block injected into the
// system prompt. Returns "" for an empty history.
func Transcript(exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range exchanges {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("User: ")
		b.WriteString(ex.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.Answer)
	}
	return b.String()
}

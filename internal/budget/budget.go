// Package budget provides token budget estimation and history trimming for
// the assistant. Because the assistant supports multiple LLM backends with
// different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/studyhall-ai/studyhall-go/internal/session"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// estimateExchange estimates the token cost of one exchange as rendered into
// the system prompt transcript ("User: ...\nAssistant: ...").
func estimateExchange(ex session.Exchange) int {
	return Estimate(ex.Question) + Estimate(ex.Answer) + 6
}

// TrimExchanges removes the oldest exchanges until the total estimated token
// count of fixedTokens + transcript fits within maxTokens. fixedTokens covers
// everything that must not be trimmed (system prompt, current user message).
//
// Returns the trimmed slice. If even an empty history exceeds the budget,
// the empty slice is returned — fixed content is never dropped here.
func TrimExchanges(fixedTokens int, exchanges []session.Exchange, maxTokens int) []session.Exchange {
	if len(exchanges) == 0 {
		return exchanges
	}

	total := fixedTokens
	for _, ex := range exchanges {
		total += estimateExchange(ex)
	}

	// History is at most a handful of exchanges; a linear scan dropping the
	// oldest is clear and correct.
	for len(exchanges) > 0 && total > maxTokens {
		total -= estimateExchange(exchanges[0])
		exchanges = exchanges[1:]
	}
	return exchanges
}

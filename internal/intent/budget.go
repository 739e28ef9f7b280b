package intent

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

type tokenizer interface {
	Encode(text string, allowedSpecial, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Budget caps how many tokens of user text reach the model.
type Budget struct {
	enc       tokenizer
	maxTokens int
}

// NewBudget picks the tokenizer for model, falling back to cl100k_base. If no
// encoding can be loaded (it is fetched on first use), the budget is applied
// as an approximate rune count instead. maxTokens <= 0 disables clipping.
func NewBudget(model string, maxTokens int) *Budget {
	b := &Budget{maxTokens: maxTokens}
	if maxTokens <= 0 {
		return b
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		slog.Warn("tokenizer unavailable, using rune estimate", "model", model, "error", err)
		return b
	}
	b.enc = enc
	return b
}

// runesPerToken is the rough English average used without a tokenizer.
const runesPerToken = 4

// Clip returns text cut to the budget.
func (b *Budget) Clip(text string) string {
	if b == nil || b.maxTokens <= 0 {
		return text
	}
	if b.enc == nil {
		r := []rune(text)
		if limit := b.maxTokens * runesPerToken; len(r) > limit {
			return string(r[:limit])
		}
		return text
	}
	toks := b.enc.Encode(text, nil, nil)
	if len(toks) <= b.maxTokens {
		return text
	}
	return b.enc.Decode(toks[:b.maxTokens])
}

// Count returns the token count of text, or an estimate without a tokenizer.
func (b *Budget) Count(text string) int {
	if b == nil || b.enc == nil {
		return (len([]rune(text)) + runesPerToken - 1) / runesPerToken
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Package analyzer implements the AI route of the hybrid classifier:
// batching, structured-generation requests through the response cache,
// validation with bounded retries, and keyword fallback on exhaustion.
package analyzer

import (
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"

	"github.com/thebtf/scribe/pkg/models"
)

const (
	// DefaultMaxBatchMessages bounds a batch by message count.
	DefaultMaxBatchMessages = 25

	// DefaultMaxBatchTokens bounds a batch by prompt token budget.
	DefaultMaxBatchTokens = 6000
)

// Batcher splits messages into bounded batches, keeping consecutive
// messages of the same conversation thread together when the budget allows.
type Batcher struct {
	maxMessages int
	maxTokens   int
	codec       tokenizer.Codec // nil when the tokenizer failed to load
}

// NewBatcher creates a Batcher with the given bounds; non-positive values
// select the defaults. Token counting uses the cl100k vocabulary and falls
// back to a bytes/4 estimate if the codec cannot be loaded.
func NewBatcher(maxMessages, maxTokens int) *Batcher {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxBatchMessages
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxBatchTokens
	}
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		log.Warn().Err(err).Msg("Tokenizer unavailable, estimating token counts")
		codec = nil
	}
	return &Batcher{maxMessages: maxMessages, maxTokens: maxTokens, codec: codec}
}

// countTokens returns the token cost of one message in a prompt.
func (b *Batcher) countTokens(msg models.NormalizedMessage) int {
	text := msg.CleanedText
	if b.codec != nil {
		if ids, _, err := b.codec.Encode(text); err == nil {
			return len(ids) + 16 // per-message prompt framing overhead
		}
	}
	return len(text)/4 + 16
}

// Split partitions msgs, preserving source order. Runs of consecutive
// same-thread messages move between batches as a unit unless a single run
// alone exceeds the budget, in which case splitting it is unavoidable.
func (b *Batcher) Split(msgs []models.NormalizedMessage) [][]models.NormalizedMessage {
	if len(msgs) == 0 {
		return nil
	}

	type run struct {
		msgs   []models.NormalizedMessage
		tokens int
	}

	var runs []run
	for _, msg := range msgs {
		key := msg.Source.ThreadKey()
		cost := b.countTokens(msg)
		if len(runs) > 0 && runs[len(runs)-1].msgs[0].Source.ThreadKey() == key {
			last := &runs[len(runs)-1]
			last.msgs = append(last.msgs, msg)
			last.tokens += cost
			continue
		}
		runs = append(runs, run{msgs: []models.NormalizedMessage{msg}, tokens: cost})
	}

	var batches [][]models.NormalizedMessage
	var current []models.NormalizedMessage
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			batches = append(batches, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, r := range runs {
		fitsCount := len(current)+len(r.msgs) <= b.maxMessages
		fitsTokens := currentTokens+r.tokens <= b.maxTokens

		if fitsCount && fitsTokens {
			current = append(current, r.msgs...)
			currentTokens += r.tokens
			continue
		}

		flush()

		if len(r.msgs) <= b.maxMessages && r.tokens <= b.maxTokens {
			current = r.msgs
			currentTokens = r.tokens
			continue
		}

		// The run alone blows the budget; split it message by message.
		for _, msg := range r.msgs {
			cost := b.countTokens(msg)
			if len(current) >= b.maxMessages || (len(current) > 0 && currentTokens+cost > b.maxTokens) {
				flush()
			}
			current = append(current, msg)
			currentTokens += cost
		}
		flush()
	}
	flush()

	return batches
}

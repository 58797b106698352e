// Package tokens estimates token counts for prompt budgeting using
// tiktoken encodings. Estimates are approximate across vendors: modern
// models tokenize similarly enough for chunk sizing, and exact counts
// are never required for correctness.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used when a model has no registered tokenizer.
// cl100k_base is the GPT-4 encoding and a reasonable approximation
// for Claude, Gemini, and other modern models.
const defaultEncoding = "cl100k_base"

// Estimator counts tokens for a fixed model. Safe for concurrent use.
type Estimator struct {
	mu       sync.Mutex
	model    string
	enc      *tiktoken.Tiktoken
	resolved bool
}

// NewEstimator returns an estimator for the given model identifier.
// The underlying encoder is resolved lazily on first use.
func NewEstimator(model string) *Estimator {
	return &Estimator{model: model}
}

// encoder resolves the tiktoken encoder for the model, falling back to
// the default encoding for unknown models. Returns nil if no encoder
// can be built at all (the caller then uses a character heuristic).
func (e *Estimator) encoder() *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resolved {
		return e.enc
	}
	e.resolved = true

	if e.model != "" {
		if enc, err := tiktoken.EncodingForModel(e.model); err == nil {
			e.enc = enc
			return e.enc
		}
	}
	if enc, err := tiktoken.GetEncoding(defaultEncoding); err == nil {
		e.enc = enc
	}
	return e.enc
}

// Count returns the estimated token count for text. Deterministic for
// a given (text, model) pair within one process run. Never fails: when
// no encoder is available it falls back to a conservative heuristic of
// one token per three bytes.
func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}

	enc := e.encoder()
	if enc == nil {
		return heuristicCount(text)
	}

	// Allow special tokens so inputs containing sequences like
	// "<|endoftext|>" are counted instead of panicking.
	return len(enc.Encode(text, []string{"all"}, nil))
}

// heuristicCount is the encoder-free fallback: ~3 bytes per token,
// minimum 1 for non-empty text.
func heuristicCount(text string) int {
	n := len(text) / 3
	if n < 1 {
		n = 1
	}
	return n
}

// CounterFunc adapts an Estimator (or any counting strategy) to the
// plain function shape consumed by the chunk planner.
type CounterFunc func(text string) int

// Counter returns e.Count as a CounterFunc.
func (e *Estimator) Counter() CounterFunc {
	return e.Count
}

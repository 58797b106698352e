// Package chunk partitions strings and file content into groups that
// fit an AI model's token budget. Strings are packed greedily; files
// that are too large on their own are bisected until every fragment
// fits or a split ceiling is reached.
package chunk

import (
	"encoding/json"
	"strings"

	"github.com/crowdin/context-harvester/crowdin"
)

// Counter estimates the token cost of a piece of text.
type Counter func(text string) int

// ---------------------------------------------------------------------------
// Budget
// ---------------------------------------------------------------------------

// DefaultStringsShare is the fraction of the usable window reserved for
// the serialized string set. Extracted context is expected to be
// shorter than the code it is mined from, so files get the larger
// share. The ratio is a heuristic, not a contract.
const DefaultStringsShare = 0.25

// Budget describes the token envelope of one provider request.
type Budget struct {
	// ContextWindow is the model's total context window size.
	ContextWindow int
	// MaxOutput is the response headroom reserved for the model.
	MaxOutput int
	// StringsShare overrides DefaultStringsShare when > 0.
	StringsShare float64
}

// Usable returns the window remaining after output headroom and the
// rendered prompt template.
func (b Budget) Usable(promptTokens int) int {
	usable := b.ContextWindow - b.MaxOutput - promptTokens
	if usable < 0 {
		return 0
	}
	return usable
}

// Split divides the usable window into a strings budget and a files
// budget.
func (b Budget) Split(promptTokens int) (stringsBudget, filesBudget int) {
	share := b.StringsShare
	if share <= 0 {
		share = DefaultStringsShare
	}
	usable := b.Usable(promptTokens)
	stringsBudget = int(float64(usable) * share)
	filesBudget = usable - stringsBudget
	return stringsBudget, filesBudget
}

// ---------------------------------------------------------------------------
// String chunks
// ---------------------------------------------------------------------------

// serializedString is the provider-facing projection of a source
// string: bookkeeping fields are stripped, only what the model needs
// to attribute context survives.
type serializedString struct {
	ID      int64  `json:"id"`
	Text    string `json:"text"`
	Key     string `json:"key,omitempty"`
	Context string `json:"context,omitempty"`
}

// SerializeStrings renders a string chunk as a JSON array in insertion
// order.
func SerializeStrings(strs []*crowdin.String) string {
	out := make([]serializedString, len(strs))
	for i, s := range strs {
		out[i] = serializedString{
			ID:      s.ID,
			Text:    s.Text,
			Key:     s.Identifier,
			Context: s.Context,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// SplitStrings packs strings greedily into chunks whose serialized form
// stays at or under budget tokens. A string whose own serialized form
// exceeds the budget is emitted alone and its id is returned in
// oversized so the caller can warn about it.
func SplitStrings(strs []*crowdin.String, budget int, count Counter) (chunks [][]*crowdin.String, oversized []int64) {
	var current []*crowdin.String
	for _, s := range strs {
		candidate := append(current, s)
		if count(SerializeStrings(candidate)) <= budget {
			current = candidate
			continue
		}
		// The new string does not fit. Close the current chunk and
		// start a new one with it.
		if len(current) > 0 {
			chunks = append(chunks, current)
		}
		if count(SerializeStrings([]*crowdin.String{s})) > budget {
			chunks = append(chunks, []*crowdin.String{s})
			oversized = append(oversized, s.ID)
			current = nil
			continue
		}
		current = []*crowdin.String{s}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, oversized
}

// ---------------------------------------------------------------------------
// File chunks
// ---------------------------------------------------------------------------

// FileContent is one local file (or fragment of one) sent for
// screening and extraction. Fragments of a bisected file keep the
// original path so the model can still attribute text to its source.
type FileContent struct {
	Path    string
	Content string
}

// SerializeFiles concatenates files with path headers.
func SerializeFiles(files []FileContent) string {
	var b strings.Builder
	for _, f := range files {
		b.WriteString("--- file: ")
		b.WriteString(f.Path)
		b.WriteString(" ---\n")
		b.WriteString(f.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// MaxFileSplits bounds the bisection depth: a file is cut in half at
// most 10 times (up to 1024 fragments) before being given up on.
const MaxFileSplits = 10

// SplitFiles packs files into chunks the same greedy way as strings.
// Files whose serialized form exceeds the budget are bisected by
// character count first; fragments still oversized after MaxFileSplits
// are dropped and their paths returned in dropped.
func SplitFiles(files []FileContent, budget int, count Counter) (chunks [][]FileContent, dropped []string) {
	fragments, dropped := bisect(files, budget, count)

	var current []FileContent
	for _, f := range fragments {
		candidate := append(current, f)
		if count(SerializeFiles(candidate)) <= budget {
			current = candidate
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, current)
		}
		current = []FileContent{f}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, dropped
}

// workItem tracks how many further splits a fragment is allowed.
type workItem struct {
	file      FileContent
	remaining int
}

// bisect resolves each file into fragments that individually fit the
// budget, using an explicit worklist instead of recursion so the split
// ceiling is a simple counter.
func bisect(files []FileContent, budget int, count Counter) (fit []FileContent, dropped []string) {
	var stack []workItem
	for i := len(files) - 1; i >= 0; i-- {
		stack = append(stack, workItem{file: files[i], remaining: MaxFileSplits})
	}

	droppedSeen := make(map[string]bool)
	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if count(SerializeFiles([]FileContent{item.file})) <= budget {
			fit = append(fit, item.file)
			continue
		}
		if item.remaining == 0 || len(item.file.Content) < 2 {
			if !droppedSeen[item.file.Path] {
				droppedSeen[item.file.Path] = true
				dropped = append(dropped, item.file.Path)
			}
			continue
		}

		mid := len(item.file.Content) / 2
		first := FileContent{Path: item.file.Path, Content: item.file.Content[:mid]}
		second := FileContent{Path: item.file.Path, Content: item.file.Content[mid:]}
		// Push in reverse so fragments come off the stack in document
		// order.
		stack = append(stack,
			workItem{file: second, remaining: item.remaining - 1},
			workItem{file: first, remaining: item.remaining - 1},
		)
	}
	return fit, dropped
}

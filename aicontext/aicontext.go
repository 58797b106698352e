// Package aicontext implements the delimited AI-context section embedded
// in a string's free-text context field. The section is bounded by fixed
// sentinel markers so repeated harvests replace it in place instead of
// stacking duplicates, and a reset can remove it without touching any
// human-written notes around it.
package aicontext

import "strings"

const (
	// SectionStart opens the AI-managed section.
	SectionStart = "✨ AI Context"
	// SectionEnd terminates the AI-managed section.
	SectionEnd = "✨ 🔚"
)

// Append merges new context fragments into context. If a marked section
// is already present, everything between the markers is replaced with
// the newline-joined fragments. Otherwise a fresh section, preceded by
// a blank line, is appended to the end. Applying Append twice with the
// same fragments yields the same result as applying it once.
func Append(context string, fragments []string) string {
	joined := strings.Join(fragments, "\n")
	section := SectionStart + "\n" + joined + "\n" + SectionEnd

	start := strings.Index(context, SectionStart)
	end := strings.Index(context, SectionEnd)
	if start >= 0 && end > start {
		return context[:start] + section + context[end+len(SectionEnd):]
	}

	if context == "" {
		return section
	}
	return context + "\n\n" + section
}

// Strip removes the marked section, including the blank line Append
// placed before it. A context without both markers is returned
// unchanged, so Strip is a no-op on untouched strings.
func Strip(context string) string {
	start := strings.Index(context, SectionStart)
	end := strings.Index(context, SectionEnd)
	if start < 0 || end < start {
		return context
	}

	prefix := context[:start]
	suffix := context[end+len(SectionEnd):]
	prefix = strings.TrimSuffix(prefix, "\n\n")
	if prefix == "" {
		suffix = strings.TrimPrefix(suffix, "\n")
	}
	return prefix + suffix
}

// Has reports whether context carries a complete marked section.
func Has(context string) bool {
	start := strings.Index(context, SectionStart)
	end := strings.Index(context, SectionEnd)
	return start >= 0 && end > start
}

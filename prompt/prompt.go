// Package prompt renders the extraction prompt sent to AI providers
// and implements pre-screening of strings against file content.
package prompt

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crowdin/context-harvester/crowdin"
)

// Placeholders the user prompt template must contain. The serialized
// string set replaces PlaceholderStrings, the serialized file set
// replaces PlaceholderFiles.
const (
	PlaceholderStrings = "{{strings}}"
	PlaceholderFiles   = "{{files}}"
)

// SystemPrompt is the static provider-facing persona description sent
// as the system message of every extraction exchange.
const SystemPrompt = `You are a localization engineer's assistant. You analyze source code to find where and how user-facing strings are used, and you record that usage as concise context notes that help human translators produce accurate translations. You always answer through the provided tool call, never as free text.`

// DefaultTemplate is the built-in user prompt for batch extraction.
const DefaultTemplate = `Below is a list of texts (in JSON format) from a software project together with pieces of the project's source code. Extract context for as many texts as you can. Context is useful information that helps a translator: where the text appears in the UI, what the surrounding feature does, what placeholders or variables mean, any constraints on length or tone.

Rules:
- Only record context for a text if the code gives real evidence of its usage. Do not invent context.
- Keep each context to one or two sentences.
- Record the results with the set_context tool, one entry per string id.
- Texts that have no applicable context may be omitted.

Texts:
{{strings}}

Code:
{{files}}`

// CheckTemplate is the built-in user prompt for the validation variant:
// instead of context, the model reports problems it finds with the
// existing texts and contexts.
const CheckTemplate = `Below is a list of texts (in JSON format) from a software project together with pieces of the project's source code. Review each text and its existing context against the code and report issues: wrong or outdated context, placeholders that do not match the code, texts that appear unused, misleading keys.

Rules:
- Only report an issue when the code gives real evidence of it.
- Keep each report to one or two sentences.
- Record the results with the report_errors tool, one entry per string id.
- Texts without issues may be omitted.

Texts:
{{strings}}

Code:
{{files}}`

// AgentTemplate is the built-in user prompt for the per-string agentic
// mode. The single string under inspection replaces {{string}}.
const AgentTemplate = `You are inspecting the project checked out in the current directory. Find where the following text is used and extract context that would help a translator: surrounding UI, feature purpose, meaning of placeholders, length or tone constraints.

Use the available tools to list, search, and read files. When you are done, record your findings with the set_context tool. If you cannot find the string or any useful context, call set_context with an empty context.

Text (JSON):
{{string}}`

// Load reads a user-supplied template from path, or from stdin when
// path is "-". An empty path returns "", which callers treat as "use
// the built-in template for the mode".
func Load(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading prompt from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	return string(data), nil
}

// Validate checks that a template carries both placeholders.
func Validate(template string) error {
	if !strings.Contains(template, PlaceholderStrings) {
		return fmt.Errorf("prompt template is missing the %s placeholder", PlaceholderStrings)
	}
	if !strings.Contains(template, PlaceholderFiles) {
		return fmt.Errorf("prompt template is missing the %s placeholder", PlaceholderFiles)
	}
	return nil
}

// Build substitutes the serialized string set and file set into the
// template and returns the user message.
func Build(template, serializedStrings, serializedFiles string) string {
	out := strings.ReplaceAll(template, PlaceholderStrings, serializedStrings)
	return strings.ReplaceAll(out, PlaceholderFiles, serializedFiles)
}

// BuildAgent substitutes one serialized string into the agent template.
func BuildAgent(template, serializedString string) string {
	if template == "" {
		template = AgentTemplate
	}
	return strings.ReplaceAll(template, "{{string}}", serializedString)
}

// ---------------------------------------------------------------------------
// Screening
// ---------------------------------------------------------------------------

// ScreenMode selects how strings are pre-filtered against a file's
// content before prompting, to cut provider cost.
type ScreenMode string

const (
	// ScreenNone sends every string.
	ScreenNone ScreenMode = "none"
	// ScreenKeys keeps strings whose key occurs verbatim in the file.
	ScreenKeys ScreenMode = "keys"
	// ScreenTexts keeps strings whose normalized text occurs in the
	// normalized file content. Lower precision than keys.
	ScreenTexts ScreenMode = "texts"
)

// newlineStripper removes literal CR/LF characters and the two-byte
// escape sequences \r and \n. Code-embedded newlines rarely match the
// stored representation, so both sides are flattened before comparing.
var newlineStripper = strings.NewReplacer("\r", "", "\n", "", `\r`, "", `\n`, "")

// Screen filters strs down to those plausibly used in content.
// ScreenNone returns the input unchanged.
func Screen(strs []*crowdin.String, content string, mode ScreenMode) []*crowdin.String {
	switch mode {
	case ScreenKeys:
		var kept []*crowdin.String
		for _, s := range strs {
			if s.Identifier != "" && strings.Contains(content, s.Identifier) {
				kept = append(kept, s)
			}
		}
		return kept
	case ScreenTexts:
		normalized := newlineStripper.Replace(content)
		var kept []*crowdin.String
		for _, s := range strs {
			text := newlineStripper.Replace(s.Text)
			if text != "" && strings.Contains(normalized, text) {
				kept = append(kept, s)
			}
		}
		return kept
	default:
		return strs
	}
}

package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Tool names shared across backends.
const (
	ToolSetContext   = "set_context"
	ToolReportErrors = "report_errors"
)

// ExtractionTool is the batch tool: the model records context for one
// or more string ids in a single call.
func ExtractionTool() Tool {
	return Tool{
		Name:        ToolSetContext,
		Description: "Record extracted context for one or more strings.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"contexts": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "integer", "description": "The string id the context belongs to."},
							"context": {"type": "string", "description": "Concise usage context for the string."}
						},
						"required": ["id", "context"]
					}
				}
			},
			"required": ["contexts"]
		}`),
	}
}

// ValidationTool is the batch tool of the check variant: the model
// reports issues instead of context.
func ValidationTool() Tool {
	return Tool{
		Name:        ToolReportErrors,
		Description: "Report issues found with one or more strings.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"errors": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"id": {"type": "integer", "description": "The string id the issue belongs to."},
							"error": {"type": "string", "description": "Description of the issue."}
						},
						"required": ["id", "error"]
					}
				}
			},
			"required": ["errors"]
		}`),
	}
}

// AgentContextTool is the terminal tool of the agentic mode: one
// context for the single string in scope.
func AgentContextTool() Tool {
	return Tool{
		Name:        ToolSetContext,
		Description: "Record the extracted context for the string under inspection. Call with an empty context if none was found.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"context": {"type": "string", "description": "Concise usage context for the string, or empty."}
			},
			"required": ["context"]
		}`),
	}
}

// ---------------------------------------------------------------------------
// Normalization
// ---------------------------------------------------------------------------

// Result is the normalized outcome for one string id. Context is set
// in extraction mode, Error in validation mode.
type Result struct {
	StringID int64
	Context  string
	Error    string
}

// flexID tolerates models emitting ids as numbers or strings.
type flexID int64

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid string id %s", string(data))
	}
	*f = flexID(n)
	return nil
}

type contextEntry struct {
	ID      flexID `json:"id"`
	Context string `json:"context"`
}

type errorEntry struct {
	ID    flexID `json:"id"`
	Error string `json:"error"`
}

// Normalize decodes every batch tool call in a response into results.
// A response with no tool calls yields an empty list. Malformed tool
// arguments fail with a provider error rather than propagating a bare
// parse failure.
func Normalize(providerID string, resp *ChatResponse) ([]Result, error) {
	var results []Result
	for _, tc := range resp.ToolCalls {
		switch tc.Name {
		case ToolSetContext:
			var args struct {
				Contexts []contextEntry `json:"contexts"`
			}
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				return nil, &Error{Provider: providerID, Err: fmt.Errorf("malformed %s arguments: %w", tc.Name, err)}
			}
			for _, e := range args.Contexts {
				results = append(results, Result{StringID: int64(e.ID), Context: e.Context})
			}
		case ToolReportErrors:
			var args struct {
				Errors []errorEntry `json:"errors"`
			}
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				return nil, &Error{Provider: providerID, Err: fmt.Errorf("malformed %s arguments: %w", tc.Name, err)}
			}
			for _, e := range args.Errors {
				results = append(results, Result{StringID: int64(e.ID), Error: e.Error})
			}
		}
	}
	return results, nil
}

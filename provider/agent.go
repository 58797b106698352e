package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// FSTools is the read-only workspace surface the agent may call while
// inspecting the codebase.
type FSTools interface {
	List(dir string) (string, error)
	Read(path string) (string, error)
	Glob(pattern string) (string, error)
	Search(query, filePattern string) (string, error)
}

// MaxAgentSteps bounds the agentic loop. Hitting the ceiling is
// "no context found", not an error.
const MaxAgentSteps = 25

// AgentResult is the outcome of one per-string agent run.
type AgentResult struct {
	// Context is the extracted context; empty when none was found.
	Context string
	// Found reports whether the model terminated with a set_context
	// call (even an empty one) rather than running out of steps.
	Found bool
	// TokensUsed accumulates usage across every loop iteration.
	TokensUsed int
}

// agentTools returns the filesystem tools plus the terminal tool.
func agentTools() []Tool {
	return []Tool{
		{
			Name:        "list_files",
			Description: "List the entries of a directory in the project. Directories end with a slash.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"dir": {"type": "string", "description": "Directory path relative to the project root. Empty for the root."}
				}
			}`),
		},
		{
			Name:        "read_file",
			Description: "Read a file from the project.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path relative to the project root."}
				},
				"required": ["path"]
			}`),
		},
		{
			Name:        "find_files",
			Description: "Find project files matching a glob pattern, e.g. src/**/*.go.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"pattern": {"type": "string", "description": "Glob pattern relative to the project root."}
				},
				"required": ["pattern"]
			}`),
		},
		{
			Name:        "search_files",
			Description: "Search project files for a literal text and return path:line:text matches.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "Literal text to search for."},
					"filePattern": {"type": "string", "description": "Optional glob restricting which files are searched."}
				},
				"required": ["query"]
			}`),
		},
		AgentContextTool(),
	}
}

// runTool dispatches one filesystem tool call. Tool failures are
// returned as content so the model can recover, not as Go errors.
func runTool(fs FSTools, tc ToolCall) string {
	fail := func(err error) string { return "error: " + err.Error() }

	switch tc.Name {
	case "list_files":
		var args struct {
			Dir string `json:"dir"`
		}
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fail(err)
		}
		out, err := fs.List(args.Dir)
		if err != nil {
			return fail(err)
		}
		return out
	case "read_file":
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fail(err)
		}
		out, err := fs.Read(args.Path)
		if err != nil {
			return fail(err)
		}
		return out
	case "find_files":
		var args struct {
			Pattern string `json:"pattern"`
		}
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fail(err)
		}
		out, err := fs.Glob(args.Pattern)
		if err != nil {
			return fail(err)
		}
		return out
	case "search_files":
		var args struct {
			Query       string `json:"query"`
			FilePattern string `json:"filePattern"`
		}
		if err := json.Unmarshal(tc.Arguments, &args); err != nil {
			return fail(err)
		}
		out, err := fs.Search(args.Query, args.FilePattern)
		if err != nil {
			return fail(err)
		}
		return out
	default:
		return fmt.Sprintf("error: unknown tool %q", tc.Name)
	}
}

// RunAgent drives the tool-using loop for one string: the model may
// list, read, and search the project before recording its answer with
// set_context. The loop ends on the terminal tool call, on a reply
// with no tool calls, or at the step ceiling; the latter two count as
// no context found.
func RunAgent(ctx context.Context, client Client, fs FSTools, systemPrompt, userPrompt string) (AgentResult, error) {
	messages := []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: userPrompt},
	}
	tools := agentTools()

	var result AgentResult
	for step := 0; step < MaxAgentSteps; step++ {
		resp, err := client.Chat(ctx, ChatRequest{Messages: messages, Tools: tools})
		if err != nil {
			return result, err
		}
		result.TokensUsed += resp.TokensUsed

		if len(resp.ToolCalls) == 0 {
			return result, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if tc.Name == ToolSetContext {
				var args struct {
					Context string `json:"context"`
				}
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					return result, &Error{Provider: "agent", Err: fmt.Errorf("malformed %s arguments: %w", tc.Name, err)}
				}
				result.Context = args.Context
				result.Found = true
				return result, nil
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    runTool(fs, tc),
				ToolCallID: tc.ID,
				Name:       tc.Name,
			})
		}
	}

	// Step ceiling reached: silent non-result.
	return result, nil
}

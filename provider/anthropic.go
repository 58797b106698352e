package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Anthropic messages API. Tool calls arrive as tool_use content blocks
// and tool results are sent back as tool_result blocks inside user
// turns.
type anthropicClient struct {
	cfg  Config
	http *http.Client
}

func newAnthropicClient(cfg Config) *anthropicClient {
	return &anthropicClient{
		cfg:  cfg,
		http: makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
	}
}

type antContentBlock struct {
	Type string `json:"type"`
	// type == "text"
	Text string `json:"text,omitempty"`
	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type antMessage struct {
	Role    string            `json:"role"`
	Content []antContentBlock `json:"content"`
}

type antTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type antRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []antMessage `json:"messages"`
	Tools     []antTool    `json:"tools,omitempty"`
}

type antResponse struct {
	Content []antContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildAnthropicBody maps the provider-neutral exchange onto the
// messages API. The system message becomes the top-level system field;
// tool results become tool_result blocks in user turns.
func buildAnthropicBody(cfg Config, req ChatRequest) ([]byte, error) {
	body := antRequest{
		Model:     cfg.Model,
		MaxTokens: 8192,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, antTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			body.System = m.Content
		case RoleAssistant:
			msg := antMessage{Role: "assistant"}
			if m.Content != "" {
				msg.Content = append(msg.Content, antContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				msg.Content = append(msg.Content, antContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: tc.Arguments,
				})
			}
			body.Messages = append(body.Messages, msg)
		case RoleTool:
			body.Messages = append(body.Messages, antMessage{
				Role: "user",
				Content: []antContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		default:
			body.Messages = append(body.Messages, antMessage{
				Role:    "user",
				Content: []antContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return json.Marshal(body)
}

func (c *anthropicClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := buildAnthropicBody(c.cfg, req)
	if err != nil {
		return nil, &Error{Provider: ProviderAnthropic, Err: fmt.Errorf("building request: %w", err)}
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/messages"

	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	respBody, err := postJSON(ctx, c.http, ProviderAnthropic, endpoint, headers, body, c.cfg.effectiveMaxRetries())
	if err != nil {
		return nil, err
	}

	var resp antResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Error{Provider: ProviderAnthropic, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if resp.Error != nil {
		return nil, &Error{Provider: ProviderAnthropic, Err: fmt.Errorf("API error: %s", resp.Error.Message)}
	}

	out := &ChatResponse{TokensUsed: resp.Usage.InputTokens + resp.Usage.OutputTokens}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: block.Input,
			})
		}
	}
	return out, nil
}

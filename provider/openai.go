package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// OpenAI chat completions wire format, shared by the openai, azure, and
// crowdin passthrough backends.
// ---------------------------------------------------------------------------

type oaMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type oaToolCall struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Function oaFunction `json:"function"`
}

type oaFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaTool struct {
	Type     string       `json:"type"`
	Function oaToolSchema `json:"function"`
}

type oaToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaRequest struct {
	Model    string      `json:"model,omitempty"`
	Messages []oaMessage `json:"messages"`
	Tools    []oaTool    `json:"tools,omitempty"`
}

type oaResponse struct {
	Choices []struct {
		Message oaMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildOpenAIBody renders a ChatRequest in chat completions format.
// model may be empty for deployments that pin it server-side (azure).
func buildOpenAIBody(model string, req ChatRequest) ([]byte, error) {
	body := oaRequest{Model: model}
	for _, m := range req.Messages {
		om := oaMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaFunction{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		body.Messages = append(body.Messages, om)
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, oaTool{
			Type: "function",
			Function: oaToolSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return json.Marshal(body)
}

// parseOpenAIResponse normalizes a chat completions response.
func parseOpenAIResponse(providerID string, body []byte) (*ChatResponse, error) {
	var resp oaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Provider: providerID, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if resp.Error != nil {
		return nil, &Error{Provider: providerID, Err: fmt.Errorf("API error: %s", resp.Error.Message)}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: providerID, Err: fmt.Errorf("response has no choices: %s", truncate(string(body), 300))}
	}

	msg := resp.Choices[0].Message
	out := &ChatResponse{
		Text:       msg.Content,
		TokensUsed: resp.Usage.TotalTokens,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// OpenAI-compatible backend (configurable base URL)
// ---------------------------------------------------------------------------

type openAIClient struct {
	cfg  Config
	http *http.Client
}

func newOpenAIClient(cfg Config) *openAIClient {
	return &openAIClient{
		cfg:  cfg,
		http: makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
	}
}

func (c *openAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := buildOpenAIBody(c.cfg.Model, req)
	if err != nil {
		return nil, &Error{Provider: ProviderOpenAI, Err: fmt.Errorf("building request: %w", err)}
	}

	baseURL := c.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/chat/completions"
	}

	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	respBody, err := postJSON(ctx, c.http, ProviderOpenAI, endpoint, headers, body, c.cfg.effectiveMaxRetries())
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(ProviderOpenAI, respBody)
}

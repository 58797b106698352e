package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/crowdin/context-harvester/crowdin"
)

// Crowdin AI passthrough: the request is chat-completions shaped and
// proxied by Crowdin to whichever vendor backs the selected Crowdin AI
// provider. crowdin.com accounts use user-scoped endpoints, so the
// authenticated user id is resolved once and cached.
type crowdinAIClient struct {
	cfg Config
	api *crowdin.Client

	userOnce sync.Once
	userID   int64
	userErr  error
}

func newCrowdinClient(cfg Config, api *crowdin.Client) *crowdinAIClient {
	return &crowdinAIClient{cfg: cfg, api: api}
}

func (c *crowdinAIClient) user(ctx context.Context) (int64, error) {
	if c.api.IsEnterprise() {
		return 0, nil
	}
	c.userOnce.Do(func() {
		c.userID, c.userErr = c.api.AuthenticatedUser(ctx)
	})
	return c.userID, c.userErr
}

func (c *crowdinAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	userID, err := c.user(ctx)
	if err != nil {
		return nil, &Error{Provider: ProviderCrowdin, Err: fmt.Errorf("resolving authenticated user: %w", err)}
	}

	body, err := buildOpenAIBody(c.cfg.Model, req)
	if err != nil {
		return nil, &Error{Provider: ProviderCrowdin, Err: fmt.Errorf("building request: %w", err)}
	}

	var payload json.RawMessage = body
	raw, err := c.api.CreateAIChatCompletion(ctx, userID, c.cfg.CrowdinProviderID, payload)
	if err != nil {
		return nil, &Error{Provider: ProviderCrowdin, Err: err}
	}

	// The passthrough wraps the vendor response in {"data": ...}.
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		raw = wrapped.Data
	}
	return parseOpenAIResponse(ProviderCrowdin, raw)
}

package provider

import (
	"context"
	"fmt"
	"net/http"
)

// azureAPIVersion is the chat completions API version the deployment
// endpoint is called with.
const azureAPIVersion = "2024-02-15-preview"

// Azure OpenAI: same wire format as OpenAI, addressed by resource and
// deployment name instead of a model field, authenticated with an
// api-key header.
type azureClient struct {
	cfg  Config
	http *http.Client
}

func newAzureClient(cfg Config) *azureClient {
	return &azureClient{
		cfg:  cfg,
		http: makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
	}
}

func (c *azureClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	// The deployment pins the model server-side.
	body, err := buildOpenAIBody("", req)
	if err != nil {
		return nil, &Error{Provider: ProviderAzure, Err: fmt.Errorf("building request: %w", err)}
	}

	endpoint := fmt.Sprintf(
		"https://%s.openai.azure.com/openai/deployments/%s/chat/completions?api-version=%s",
		c.cfg.Resource, c.cfg.Deployment, azureAPIVersion,
	)

	headers := map[string]string{"api-key": c.cfg.APIKey}
	respBody, err := postJSON(ctx, c.http, ProviderAzure, endpoint, headers, body, c.cfg.effectiveMaxRetries())
	if err != nil {
		return nil, err
	}
	return parseOpenAIResponse(ProviderAzure, respBody)
}

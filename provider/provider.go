// Package provider implements AI backends for context extraction:
// the Crowdin AI passthrough, OpenAI-compatible endpoints, Anthropic,
// Google Vertex AI, and Azure OpenAI. Every backend's tool-call
// response is normalized into the same flat result list.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crowdin/context-harvester/crowdin"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderCrowdin      = "crowdin"
	ProviderOpenAI       = "openai"
	ProviderAnthropic    = "anthropic"
	ProviderGoogleVertex = "google-vertex"
	ProviderAzure        = "azure"
)

// IDs lists every supported provider id.
func IDs() []string {
	return []string{ProviderCrowdin, ProviderOpenAI, ProviderAnthropic, ProviderGoogleVertex, ProviderAzure}
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config selects and configures one backend.
type Config struct {
	// ID is the provider identifier (crowdin, openai, ...).
	ID string
	// Model is the model identifier (or the Crowdin model id).
	Model string
	// APIKey authenticates openai, anthropic, and azure.
	APIKey string
	// BaseURL overrides the endpoint for openai-compatible services.
	BaseURL string

	// Region, Project, and CredentialsFile configure google-vertex:
	// cloud region, GCP project id, and a service-account JSON file.
	Region          string
	Project         string
	CredentialsFile string

	// Resource and Deployment configure azure.
	Resource   string
	Deployment string

	// CrowdinProviderID selects the Crowdin-side AI provider for the
	// crowdin passthrough.
	CrowdinProviderID int64

	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the per-request timeout (default 120s).
	Timeout time.Duration
	// MaxRetries is the retry budget for 429/5xx/transport errors
	// (default 2).
	MaxRetries int
}

func (c Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

func (c Config) effectiveMaxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return 2
}

// NewClient builds the backend selected by cfg. The crowdin backend
// additionally needs the API client the passthrough is routed over.
func NewClient(cfg Config, cw *crowdin.Client) (Client, error) {
	switch cfg.ID {
	case ProviderCrowdin:
		if cw == nil {
			return nil, fmt.Errorf("crowdin provider requires a configured crowdin client")
		}
		if cfg.CrowdinProviderID == 0 {
			return nil, fmt.Errorf("crowdin provider requires a Crowdin AI provider id")
		}
		return newCrowdinClient(cfg, cw), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return newOpenAIClient(cfg), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key")
		}
		return newAnthropicClient(cfg), nil
	case ProviderGoogleVertex:
		if cfg.Region == "" || cfg.Project == "" || cfg.CredentialsFile == "" {
			return nil, fmt.Errorf("google-vertex provider requires region, project, and a service-account credentials file")
		}
		return newVertexClient(cfg)
	case ProviderAzure:
		if cfg.Resource == "" || cfg.Deployment == "" || cfg.APIKey == "" {
			return nil, fmt.Errorf("azure provider requires resource, deployment, and an API key")
		}
		return newAzureClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q (supported: %s)", cfg.ID, strings.Join(IDs(), ", "))
	}
}

// ---------------------------------------------------------------------------
// Chat protocol
// ---------------------------------------------------------------------------

// Message is one turn of a provider exchange. ToolCalls is set on
// assistant turns that requested tools; ToolCallID and Name are set on
// tool-result turns.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Tool describes one callable function offered to the model.
// Parameters holds a JSON Schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ChatRequest is one provider round trip.
type ChatRequest struct {
	Messages []Message
	Tools    []Tool
}

// ChatResponse is the normalized reply shape shared by all backends.
type ChatResponse struct {
	Text       string
	ToolCalls  []ToolCall
	TokensUsed int
}

// Client is the strategy interface each backend implements.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error wraps a backend failure: a transport/HTTP error or a malformed
// tool-call payload. The scheduler decides whether it is fatal for the
// run or only for the current unit.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Shared HTTP plumbing
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

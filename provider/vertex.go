package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google Vertex AI (Gemini models). Authenticates with a service
// account: the credentials JSON is exchanged for an OAuth2 access
// token scoped to cloud-platform, and requests go to the regional
// aiplatform endpoint of the configured project.
type vertexClient struct {
	cfg    Config
	http   *http.Client
	tokens oauth2.TokenSource
}

func newVertexClient(cfg Config) (*vertexClient, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading service-account credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(context.Background(), data, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("parsing service-account credentials: %w", err)
	}
	return &vertexClient{
		cfg:    cfg,
		http:   makeHTTPClient(cfg.Proxy, cfg.effectiveTimeout()),
		tokens: creds.TokenSource,
	}, nil
}

type vtxFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

type vtxFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type vtxPart struct {
	Text             string               `json:"text,omitempty"`
	FunctionCall     *vtxFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *vtxFunctionResponse `json:"functionResponse,omitempty"`
}

type vtxContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []vtxPart `json:"parts"`
}

type vtxFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type vtxRequest struct {
	Contents          []vtxContent `json:"contents"`
	SystemInstruction *vtxContent  `json:"systemInstruction,omitempty"`
	Tools             []struct {
		FunctionDeclarations []vtxFunctionDecl `json:"functionDeclarations"`
	} `json:"tools,omitempty"`
}

type vtxResponse struct {
	Candidates []struct {
		Content vtxContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// buildVertexBody maps the neutral exchange onto generateContent.
// Gemini has no tool-call ids; calls are correlated by function name.
func buildVertexBody(req ChatRequest) ([]byte, error) {
	var body vtxRequest

	if len(req.Tools) > 0 {
		decls := make([]vtxFunctionDecl, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = vtxFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		body.Tools = []struct {
			FunctionDeclarations []vtxFunctionDecl `json:"functionDeclarations"`
		}{{FunctionDeclarations: decls}}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			body.SystemInstruction = &vtxContent{Parts: []vtxPart{{Text: m.Content}}}
		case RoleAssistant:
			content := vtxContent{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, vtxPart{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				content.Parts = append(content.Parts, vtxPart{
					FunctionCall: &vtxFunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
			body.Contents = append(body.Contents, content)
		case RoleTool:
			body.Contents = append(body.Contents, vtxContent{
				Role: "user",
				Parts: []vtxPart{{
					FunctionResponse: &vtxFunctionResponse{
						Name:     m.Name,
						Response: map[string]any{"content": m.Content},
					},
				}},
			})
		default:
			body.Contents = append(body.Contents, vtxContent{
				Role:  "user",
				Parts: []vtxPart{{Text: m.Content}},
			})
		}
	}
	return json.Marshal(body)
}

func (c *vertexClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := buildVertexBody(req)
	if err != nil {
		return nil, &Error{Provider: ProviderGoogleVertex, Err: fmt.Errorf("building request: %w", err)}
	}

	token, err := c.tokens.Token()
	if err != nil {
		return nil, &Error{Provider: ProviderGoogleVertex, Err: fmt.Errorf("obtaining access token: %w", err)}
	}

	endpoint := fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		c.cfg.Region, c.cfg.Project, c.cfg.Region, c.cfg.Model,
	)

	headers := map[string]string{"Authorization": "Bearer " + token.AccessToken}
	respBody, err := postJSON(ctx, c.http, ProviderGoogleVertex, endpoint, headers, body, c.cfg.effectiveMaxRetries())
	if err != nil {
		return nil, err
	}

	var resp vtxResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, &Error{Provider: ProviderGoogleVertex, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if resp.Error != nil {
		return nil, &Error{Provider: ProviderGoogleVertex, Err: fmt.Errorf("API error: %s", resp.Error.Message)}
	}
	if len(resp.Candidates) == 0 {
		return nil, &Error{Provider: ProviderGoogleVertex, Err: fmt.Errorf("response has no candidates: %s", truncate(string(respBody), 300))}
	}

	out := &ChatResponse{TokensUsed: resp.UsageMetadata.TotalTokenCount}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Text += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        part.FunctionCall.Name,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}
	return out, nil
}

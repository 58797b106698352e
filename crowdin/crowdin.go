// Package crowdin is a minimal REST client for the Crowdin API v2,
// covering the surface the harvester needs: project metadata, file and
// branch listings, source strings, batch context updates, and the AI
// provider passthrough. Both crowdin.com and Crowdin Enterprise are
// supported; enterprise (organization) accounts route AI calls through
// organization-scoped endpoints.
package crowdin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// String is one source string as stored by Crowdin.
type String struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Identifier string `json:"identifier,omitempty"`
	Context    string `json:"context,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// Project holds the subset of project metadata the harvester reads.
type Project struct {
	ID                int64    `json:"id"`
	Name              string   `json:"name"`
	Type              int      `json:"type"`
	TargetLanguageIDs []string `json:"targetLanguageIds"`
}

// IsStringsBased reports whether strings are grouped by branch rather
// than by file (Crowdin "strings-based" project type).
func (p *Project) IsStringsBased() bool {
	return p.Type == 1
}

// File is one remote file containing source strings.
type File struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

// Branch is one branch of a strings-based project.
type Branch struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Language is one supported project language.
type Language struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AIProvider is one AI provider configured on the Crowdin side.
type AIProvider struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsEnabled bool   `json:"isEnabled"`
}

// AIModel is one model offered by a Crowdin AI provider.
type AIModel struct {
	ID string `json:"id"`
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client talks to one Crowdin account. Org is empty for crowdin.com
// accounts and holds the organization domain for enterprise accounts.
type Client struct {
	Token   string
	Org     string
	BaseURL string // override for tests; empty = derived from Org
	HTTP    *http.Client
}

// New returns a client for the given personal access token. org may be
// empty for non-enterprise accounts.
func New(token, org string) *Client {
	return &Client{
		Token: token,
		Org:   org,
		HTTP:  &http.Client{Timeout: 60 * time.Second},
	}
}

// IsEnterprise reports whether this client targets an organization.
func (c *Client) IsEnterprise() bool {
	return c.Org != ""
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	if c.Org != "" {
		return fmt.Sprintf("https://%s.api.crowdin.com/api/v2", c.Org)
	}
	return "https://api.crowdin.com/api/v2"
}

// APIError is a non-2xx response from the Crowdin API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crowdin API returned status %d: %s", e.Status, truncate(e.Body, 300))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// do issues one request and decodes the response body into out (when
// out is non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL() + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("crowdin API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decoding crowdin response: %w", err)
		}
	}
	return nil
}

// listItem is the {"data": ...} wrapper around every list element.
type listItem[T any] struct {
	Data T `json:"data"`
}

type listResponse[T any] struct {
	Data []listItem[T] `json:"data"`
}

const pageLimit = 500

// listAll pages through a list endpoint until a short page is returned.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	offset := 0
	for {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("limit", fmt.Sprintf("%d", pageLimit))
		q.Set("offset", fmt.Sprintf("%d", offset))

		var page listResponse[T]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Data {
			all = append(all, item.Data)
		}
		if len(page.Data) < pageLimit {
			return all, nil
		}
		offset += len(page.Data)
	}
}

// ---------------------------------------------------------------------------
// Projects / files / branches / strings
// ---------------------------------------------------------------------------

// ListProjects returns all projects visible to the token.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	return listAll[Project](ctx, c, "/projects", nil)
}

// GetProject fetches one project by id.
func (c *Client) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	var resp listItem[Project]
	path := fmt.Sprintf("/projects/%d", projectID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ListFiles returns all files of a file-based project.
func (c *Client) ListFiles(ctx context.Context, projectID int64) ([]File, error) {
	return listAll[File](ctx, c, fmt.Sprintf("/projects/%d/files", projectID), nil)
}

// ListBranches returns all branches of a strings-based project.
func (c *Client) ListBranches(ctx context.Context, projectID int64) ([]Branch, error) {
	return listAll[Branch](ctx, c, fmt.Sprintf("/projects/%d/branches", projectID), nil)
}

// ListLanguages returns all languages supported by Crowdin.
func (c *Client) ListLanguages(ctx context.Context) ([]Language, error) {
	return listAll[Language](ctx, c, "/languages", nil)
}

// StringsFilter selects which strings to list. FileID, BranchID, and
// CroQL are mutually exclusive; the caller validates that before
// reaching the API.
type StringsFilter struct {
	FileID   int64
	BranchID int64
	CroQL    string
}

// ListStrings returns source strings of a project matching the filter.
func (c *Client) ListStrings(ctx context.Context, projectID int64, filter StringsFilter) ([]String, error) {
	query := url.Values{}
	switch {
	case filter.CroQL != "":
		query.Set("croql", filter.CroQL)
	case filter.FileID != 0:
		query.Set("fileId", fmt.Sprintf("%d", filter.FileID))
	case filter.BranchID != 0:
		query.Set("branchId", fmt.Sprintf("%d", filter.BranchID))
	}
	return listAll[String](ctx, c, fmt.Sprintf("/projects/%d/strings", projectID), query)
}

// ContextUpdate is one string whose context should be replaced.
type ContextUpdate struct {
	ID      int64
	Context string
}

type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

// BatchUpdateContexts replaces the context field of each listed string
// in one JSON-Patch batch call.
func (c *Client) BatchUpdateContexts(ctx context.Context, projectID int64, updates []ContextUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ops := make([]patchOp, len(updates))
	for i, u := range updates {
		ops[i] = patchOp{
			Op:    "replace",
			Path:  fmt.Sprintf("/%d/context", u.ID),
			Value: u.Context,
		}
	}
	path := fmt.Sprintf("/projects/%d/strings", projectID)
	return c.do(ctx, http.MethodPatch, path, nil, ops, nil)
}

// ---------------------------------------------------------------------------
// AI provider passthrough
// ---------------------------------------------------------------------------

// aiBase returns the path prefix for AI endpoints. Enterprise accounts
// use organization-scoped routes, crowdin.com accounts user-scoped
// ones.
func (c *Client) aiBase(userID int64) string {
	if c.IsEnterprise() {
		return "/ai"
	}
	return fmt.Sprintf("/users/%d/ai", userID)
}

// AuthenticatedUser returns the id of the token's user. Needed for
// user-scoped AI endpoints on crowdin.com.
func (c *Client) AuthenticatedUser(ctx context.Context) (int64, error) {
	var resp listItem[struct {
		ID int64 `json:"id"`
	}]
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Data.ID, nil
}

// ListAIProviders returns the AI providers configured for the account.
func (c *Client) ListAIProviders(ctx context.Context, userID int64) ([]AIProvider, error) {
	return listAll[AIProvider](ctx, c, c.aiBase(userID)+"/providers", nil)
}

// ListAIModels returns the models available for one AI provider.
func (c *Client) ListAIModels(ctx context.Context, userID, providerID int64) ([]AIModel, error) {
	path := fmt.Sprintf("%s/providers/%d/models", c.aiBase(userID), providerID)
	return listAll[AIModel](ctx, c, path, nil)
}

// CreateAIChatCompletion proxies one chat completion request through
// Crowdin to the selected provider. The payload and response follow the
// OpenAI chat completions shape; it is passed through verbatim.
func (c *Client) CreateAIChatCompletion(ctx context.Context, userID, providerID int64, payload any) (json.RawMessage, error) {
	path := fmt.Sprintf("%s/providers/%d/chat/completions", c.aiBase(userID), providerID)
	var resp json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

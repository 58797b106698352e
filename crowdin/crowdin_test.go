package crowdin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(url string) *Client {
	return &Client{Token: "tok", BaseURL: url, HTTP: http.DefaultClient}
}

func writeListPage(w http.ResponseWriter, items []any) {
	page := struct {
		Data []map[string]any `json:"data"`
	}{}
	for _, item := range items {
		page.Data = append(page.Data, map[string]any{"data": item})
	}
	if page.Data == nil {
		page.Data = []map[string]any{}
	}
	json.NewEncoder(w).Encode(page)
}

func TestListStringsPaginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		// First page is full, second is short.
		var items []any
		n := pageLimit
		if offset != "0" {
			n = 3
		}
		for i := 0; i < n; i++ {
			items = append(items, String{ID: int64(i), Text: "t"})
		}
		writeListPage(w, items)
	}))
	defer srv.Close()

	strs, err := newTestClient(srv.URL).ListStrings(context.Background(), 42, StringsFilter{})
	if err != nil {
		t.Fatalf("ListStrings: %v", err)
	}
	if len(strs) != pageLimit+3 {
		t.Fatalf("strings = %d, want %d", len(strs), pageLimit+3)
	}
	if len(offsets) != 2 || offsets[0] != "0" || offsets[1] != fmt.Sprintf("%d", pageLimit) {
		t.Fatalf("offsets = %v", offsets)
	}
}

func TestListStringsFilterPrecedence(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		writeListPage(w, nil)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	filter := StringsFilter{FileID: 7, BranchID: 8, CroQL: `context contains "x"`}
	if _, err := c.ListStrings(context.Background(), 1, filter); err != nil {
		t.Fatalf("ListStrings: %v", err)
	}
	if !strings.Contains(query, "croql=") {
		t.Fatalf("croql should win over file and branch filters, query = %q", query)
	}
	if strings.Contains(query, "fileId=") || strings.Contains(query, "branchId=") {
		t.Fatalf("only one filter may be sent, query = %q", query)
	}
}

func TestBatchUpdateContextsBody(t *testing.T) {
	var body []byte
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	updates := []ContextUpdate{
		{ID: 101, Context: "first"},
		{ID: 202, Context: "second"},
	}
	if err := newTestClient(srv.URL).BatchUpdateContexts(context.Background(), 9, updates); err != nil {
		t.Fatalf("BatchUpdateContexts: %v", err)
	}
	if method != http.MethodPatch || path != "/projects/9/strings" {
		t.Fatalf("request = %s %s", method, path)
	}

	var ops []patchOp
	if err := json.Unmarshal(body, &ops); err != nil {
		t.Fatalf("decoding patch body: %v", err)
	}
	want := []patchOp{
		{Op: "replace", Path: "/101/context", Value: "first"},
		{Op: "replace", Path: "/202/context", Value: "second"},
	}
	if len(ops) != len(want) {
		t.Fatalf("ops = %d, want %d", len(ops), len(want))
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("op %d = %+v, want %+v", i, ops[i], want[i])
		}
	}
}

func TestBatchUpdateContextsEmptySkipsRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty update set")
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).BatchUpdateContexts(context.Background(), 9, nil); err != nil {
		t.Fatalf("BatchUpdateContexts: %v", err)
	}
}

func TestAIRoutesUserVsOrgScoped(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		writeListPage(w, nil)
	}))
	defer srv.Close()

	personal := newTestClient(srv.URL)
	if _, err := personal.ListAIProviders(context.Background(), 55); err != nil {
		t.Fatalf("ListAIProviders: %v", err)
	}

	enterprise := newTestClient(srv.URL)
	enterprise.Org = "acme"
	if _, err := enterprise.ListAIProviders(context.Background(), 55); err != nil {
		t.Fatalf("ListAIProviders (org): %v", err)
	}

	if paths[0] != "/users/55/ai/providers" {
		t.Fatalf("personal path = %q", paths[0])
	}
	if paths[1] != "/ai/providers" {
		t.Fatalf("enterprise path = %q", paths[1])
	}
}

func TestGetProjectUnwrapsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/12" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"id":12,"name":"Docs","type":1,"targetLanguageIds":["uk","de"]}}`)
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).GetProject(context.Background(), 12)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.Name != "Docs" || !p.IsStringsBased() {
		t.Fatalf("project = %+v", p)
	}
	if len(p.TargetLanguageIDs) != 2 {
		t.Fatalf("target languages = %v", p.TargetLanguageIDs)
	}
}

func TestListLanguagesUnwrapsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/languages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		writeListPage(w, []any{
			Language{ID: "uk", Name: "Ukrainian"},
			Language{ID: "de", Name: "German"},
		})
	}))
	defer srv.Close()

	langs, err := newTestClient(srv.URL).ListLanguages(context.Background())
	if err != nil {
		t.Fatalf("ListLanguages: %v", err)
	}
	if len(langs) != 2 || langs[0].ID != "uk" || langs[1].Name != "German" {
		t.Fatalf("languages = %+v", langs)
	}
}

func TestAPIErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid token"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).ListProjects(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("status = %d", apiErr.Status)
	}
	if !strings.Contains(apiErr.Error(), "invalid token") {
		t.Fatalf("error text = %q", apiErr.Error())
	}
}

func TestBaseURLDerivedFromOrg(t *testing.T) {
	c := New("tok", "")
	if got := c.baseURL(); got != "https://api.crowdin.com/api/v2" {
		t.Fatalf("baseURL = %q", got)
	}
	c = New("tok", "acme")
	if got := c.baseURL(); got != "https://acme.api.crowdin.com/api/v2" {
		t.Fatalf("baseURL = %q", got)
	}
}

func TestCreateAIChatCompletionReturnsRawResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/3/ai/providers/14/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "gpt-4o" {
			t.Errorf("payload model = %v", payload["model"])
		}
		fmt.Fprint(w, `{"data":{"choices":[]}}`)
	}))
	defer srv.Close()

	raw, err := newTestClient(srv.URL).CreateAIChatCompletion(context.Background(), 3, 14, map[string]any{"model": "gpt-4o"})
	if err != nil {
		t.Fatalf("CreateAIChatCompletion: %v", err)
	}
	if !strings.Contains(string(raw), "choices") {
		t.Fatalf("raw = %s", raw)
	}
}

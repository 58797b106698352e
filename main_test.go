package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crowdin/context-harvester/crowdin"
	"github.com/crowdin/context-harvester/harvest"
	"github.com/crowdin/context-harvester/prompt"
)

func TestParseScreen(t *testing.T) {
	tests := []struct {
		in      string
		want    prompt.ScreenMode
		wantErr bool
	}{
		{"", prompt.ScreenNone, false},
		{"none", prompt.ScreenNone, false},
		{"keys", prompt.ScreenKeys, false},
		{"texts", prompt.ScreenTexts, false},
		{"everything", "", true},
	}
	for _, tc := range tests {
		got, err := parseScreen(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseScreen(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("parseScreen(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	if got, err := parseStrategy(""); err != nil || got != harvest.StrategyBatch {
		t.Fatalf("parseStrategy(\"\") = %q, %v", got, err)
	}
	if got, err := parseStrategy("agent"); err != nil || got != harvest.StrategyAgent {
		t.Fatalf("parseStrategy(agent) = %q, %v", got, err)
	}
	if _, err := parseStrategy("yolo"); err == nil {
		t.Fatal("parseStrategy(yolo) should fail")
	}
}

func TestToPointersKeepsOrder(t *testing.T) {
	strs := []crowdin.String{{ID: 1}, {ID: 2}, {ID: 3}}
	ptrs := toPointers(strs)
	if len(ptrs) != 3 {
		t.Fatalf("len = %d, want 3", len(ptrs))
	}
	for i, p := range ptrs {
		if p.ID != strs[i].ID {
			t.Fatalf("ptrs[%d].ID = %d, want %d", i, p.ID, strs[i].ID)
		}
	}
	// Pointers must alias the slice elements, not copies.
	ptrs[0].Text = "changed"
	if strs[0].Text != "changed" {
		t.Fatal("toPointers must point into the original slice")
	}
}

// A file whose string listing fails must not abort the whole run; the
// remaining files still get harvested.
func TestListContainersSkipsFailedFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/projects/7/files":
			w.Write([]byte(`{"data":[
				{"data":{"id":1,"path":"/broken.json"}},
				{"data":{"id":2,"path":"/good.json"}}]}`))
		case r.URL.Path == "/projects/7/strings" && r.URL.Query().Get("fileId") == "1":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"boom"}`))
		case r.URL.Path == "/projects/7/strings" && r.URL.Query().Get("fileId") == "2":
			w.Write([]byte(`{"data":[{"data":{"id":10,"text":"Save","identifier":"btn.save"}}]}`))
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	cw := &crowdin.Client{Token: "t", BaseURL: srv.URL, HTTP: srv.Client()}
	project := &crowdin.Project{ID: 7, Name: "Demo"}
	containers, err := listContainers(context.Background(), cw, project, harvestArgs{})
	if err != nil {
		t.Fatalf("listContainers: %v", err)
	}
	if len(containers) != 1 {
		t.Fatalf("containers = %d, want the one healthy file", len(containers))
	}
	if containers[0].Name != "/good.json" || len(containers[0].Strings) != 1 {
		t.Fatalf("container = %+v", containers[0])
	}
}

func TestJoinLanguageNames(t *testing.T) {
	langs := []crowdin.Language{
		{ID: "uk", Name: "Ukrainian"},
		{ID: "de", Name: "German"},
	}
	got := joinLanguageNames([]string{"uk", "de", "xx"}, langs)
	if got != "Ukrainian, German, xx" {
		t.Fatalf("joinLanguageNames = %q", got)
	}
}

func TestContainerNoun(t *testing.T) {
	if got := containerNoun(&crowdin.Project{Type: 1}); got != "branches" {
		t.Fatalf("strings-based project noun = %q", got)
	}
	if got := containerNoun(&crowdin.Project{Type: 0}); got != "files" {
		t.Fatalf("file-based project noun = %q", got)
	}
}

package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirAndFilePathUseXDGDataHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	wantDir := filepath.Join(tmp, "context-harvester")
	if dir != wantDir {
		t.Fatalf("DataDir() = %q, want %q", dir, wantDir)
	}

	wantPath := filepath.Join(tmp, "context-harvester", "auth.json")
	if got := FilePath(); got != wantPath {
		t.Fatalf("FilePath() = %q, want %q", got, wantPath)
	}
}

func TestSaveLoadRemoveLifecycle(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	store := Store{
		"openai":   {Type: "api", Key: "apikey123456"},
		CrowdinKey: {Type: "crowdin", Token: "pat-token", Org: "acme"},
	}

	if err := Save(store); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	path := filepath.Join(tmp, "context-harvester", "auth.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat auth.json: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("auth.json mode = %o, want 600", info.Mode().Perm())
	}

	loaded := Load()
	if loaded["openai"] == nil || loaded["openai"].Key != "apikey123456" {
		t.Fatalf("Load() missing openai key: %#v", loaded["openai"])
	}
	if got := GetCrowdin(); got == nil || got.Token != "pat-token" || got.Org != "acme" {
		t.Fatalf("Load() missing crowdin account: %#v", got)
	}

	if err := Remove("openai"); err != nil {
		t.Fatalf("Remove(openai) error: %v", err)
	}
	if got := GetAPIKey("openai"); got != "" {
		t.Fatalf("GetAPIKey after remove = %q, want empty", got)
	}
	if GetCrowdin() == nil {
		t.Fatalf("crowdin account should remain after removing openai")
	}

	if err := Remove("missing-provider"); err != nil {
		t.Fatalf("Remove(missing) should be no-op, got: %v", err)
	}

	if err := RemoveAll(); err != nil {
		t.Fatalf("RemoveAll() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("auth.json should be removed, stat err=%v", err)
	}
	if got := Load(); len(got) != 0 {
		t.Fatalf("Load() after RemoveAll should be empty, got=%#v", got)
	}
}

func TestResolveAPIKeyPriority(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	if err := SetAPIKey("openai", "stored-key"); err != nil {
		t.Fatalf("SetAPIKey() error: %v", err)
	}

	t.Setenv("OPENAI_KEY", "env-key")

	if got := ResolveAPIKey("openai", "flag-key"); got != "flag-key" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := ResolveAPIKey("openai", ""); got != "env-key" {
		t.Fatalf("env should win over store, got %q", got)
	}

	t.Setenv("OPENAI_KEY", "")
	if got := ResolveAPIKey("openai", ""); got != "stored-key" {
		t.Fatalf("stored key expected, got %q", got)
	}
}

func TestEnvVarForProviderAndMaskKey(t *testing.T) {
	cases := map[string]string{
		"openai":        "OPENAI_KEY",
		"anthropic":     "ANTHROPIC_API_KEY",
		"azure":         "AZURE_API_KEY",
		"google-vertex": "",
		"crowdin":       "",
		"unknown":       "",
	}
	for provider, want := range cases {
		if got := EnvVarForProvider(provider); got != want {
			t.Fatalf("EnvVarForProvider(%q) = %q, want %q", provider, got, want)
		}
	}

	if got := MaskKey("short"); got != "****" {
		t.Fatalf("MaskKey(short) = %q, want ****", got)
	}
	if got := MaskKey("12345678"); got != "****" {
		t.Fatalf("MaskKey(8 chars) = %q, want ****", got)
	}
	if got := MaskKey("123456789"); got != "1234...6789" {
		t.Fatalf("MaskKey(9 chars) = %q, want 1234...6789", got)
	}
}

func TestVendorEntryRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	if err := Set("google-vertex", &Info{
		Type:            "api",
		Project:         "my-project",
		Region:          "us-central1",
		CredentialsFile: "/home/me/sa.json",
	}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if err := Set("azure", &Info{
		Type:       "api",
		Key:        "azkey",
		Resource:   "my-resource",
		Deployment: "gpt4o",
	}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	vertex := Get("google-vertex")
	if vertex == nil || vertex.Project != "my-project" || vertex.CredentialsFile != "/home/me/sa.json" {
		t.Fatalf("vertex entry = %#v", vertex)
	}
	azure := Get("azure")
	if azure == nil || azure.Resource != "my-resource" || azure.Deployment != "gpt4o" {
		t.Fatalf("azure entry = %#v", azure)
	}
}

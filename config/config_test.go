package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	f, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if f != nil {
		t.Fatalf("Load() = %+v, want nil for missing file", f)
	}
}

func TestLoadFullConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
org: acme
project: 42
ai: openai
model: gpt-4o
screen: keys
local_files:
  - "src/**/*.tsx"
  - "src/**/*.ts"
local_ignore_files:
  - "**/*.test.ts"
crowdin_files: "*.json"
croql: 'context contains "button"'
prompt_file: prompts/custom.txt
output: csv
csv_path: out.csv
context_window_size: 128000
max_output_tokens: 16384
concurrency: 5
`)

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if f.Org != "acme" || f.Project != 42 || f.AI != "openai" || f.Model != "gpt-4o" {
		t.Fatalf("identity fields = %+v", f)
	}
	if len(f.LocalFiles) != 2 || f.LocalFiles[0] != "src/**/*.tsx" {
		t.Fatalf("LocalFiles = %v", f.LocalFiles)
	}
	if len(f.LocalIgnoreFiles) != 1 {
		t.Fatalf("LocalIgnoreFiles = %v", f.LocalIgnoreFiles)
	}
	if f.Screen != "keys" || f.Output != "csv" || f.CSVPath != "out.csv" {
		t.Fatalf("mode fields = %+v", f)
	}
	if f.ContextWindowSize != 128000 || f.MaxOutputTokens != 16384 || f.Concurrency != 5 {
		t.Fatalf("budget fields = %+v", f)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad screen":      "screen: everything\n",
		"bad output":      "output: pdf\n",
		"bad project":     "project: -1\n",
		"bad concurrency": "concurrency: -2\n",
		"bad yaml":        "local_files: [unclosed\n",
	}
	for name, content := range cases {
		dir := t.TempDir()
		writeConfig(t, dir, content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: Load() should fail", name)
		}
	}
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")

	f, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if f == nil {
		t.Fatal("empty file should still yield a config")
	}
	if f.Screen != "" || f.Output != "" {
		t.Fatalf("empty file should leave enums empty, got %+v", f)
	}
}

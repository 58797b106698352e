// Package config — .context-harvester.yml configuration file support.
//
// When a .context-harvester.yml file exists in the working directory,
// its values become the defaults for the matching command-line flags.
// Flags set explicitly on the command line always win.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .context-harvester.yml structure.
type File struct {
	// Org is the Crowdin Enterprise organization domain.
	Org string `yaml:"org,omitempty"`
	// Project is the Crowdin project id.
	Project int64 `yaml:"project,omitempty"`
	// AI is the provider id: crowdin, openai, anthropic, google-vertex, azure.
	AI string `yaml:"ai,omitempty"`
	// Model is the model name understood by the provider.
	Model string `yaml:"model,omitempty"`
	// Screen: none, keys, texts.
	Screen string `yaml:"screen,omitempty"`
	// LocalFiles are include globs for the local codebase scan.
	LocalFiles []string `yaml:"local_files,omitempty"`
	// LocalIgnoreFiles are exclude globs for the local codebase scan.
	LocalIgnoreFiles []string `yaml:"local_ignore_files,omitempty"`
	// CrowdinFiles is a glob matched against remote file paths.
	CrowdinFiles string `yaml:"crowdin_files,omitempty"`
	// CroQL pre-filters strings on the Crowdin side.
	CroQL string `yaml:"croql,omitempty"`
	// PromptFile overrides the built-in prompt template ("-" = stdin).
	PromptFile string `yaml:"prompt_file,omitempty"`
	// Output: terminal, csv, crowdin.
	Output string `yaml:"output,omitempty"`
	// CSVPath is where csv output is written.
	CSVPath string `yaml:"csv_path,omitempty"`
	// ContextWindowSize is the model's context window in tokens.
	ContextWindowSize int `yaml:"context_window_size,omitempty"`
	// MaxOutputTokens is the response headroom in tokens.
	MaxOutputTokens int `yaml:"max_output_tokens,omitempty"`
	// Concurrency is the agent-mode worker count.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// FileName is the default config file name.
const FileName = ".context-harvester.yml"

// valid enum values per field; empty means "use the flag default".
var (
	validScreens = map[string]bool{"": true, "none": true, "keys": true, "texts": true}
	validOutputs = map[string]bool{"": true, "terminal": true, "csv": true, "crowdin": true}
)

// Load reads and validates the config file from the given directory.
// Returns nil if no config file exists.
func Load(rootDir string) (*File, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if !validScreens[f.Screen] {
		return nil, fmt.Errorf("%s: invalid screen %q (valid: none, keys, texts)", path, f.Screen)
	}
	if !validOutputs[f.Output] {
		return nil, fmt.Errorf("%s: invalid output %q (valid: terminal, csv, crowdin)", path, f.Output)
	}
	if f.Project < 0 {
		return nil, fmt.Errorf("%s: invalid project id %d", path, f.Project)
	}
	if f.Concurrency < 0 {
		return nil, fmt.Errorf("%s: invalid concurrency %d", path, f.Concurrency)
	}

	return &f, nil
}

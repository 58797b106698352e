// Package settings stores harvester credentials on disk.
//
// Everything lives in the XDG data directory:
//
//	$XDG_DATA_HOME/context-harvester/  (default: ~/.local/share/context-harvester/)
//
// auth.json is a JSON object keyed by provider ID. Each value is a
// discriminated union on the "type" field:
//
//   - "crowdin" — personal access token plus optional enterprise
//     organization domain
//   - "api"     — vendor credentials (API key, base URL, Vertex
//     project/region/service-account path, Azure resource/deployment)
//
// File permissions are 0600 (owner read/write only).
//
// Lookup order for any credential:
//  1. command-line flag (highest priority)
//  2. environment variable (CROWDIN_TOKEN, OPENAI_KEY, ...)
//  3. this store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "context-harvester"
	fileName    = "auth.json"
)

// ---------------------------------------------------------------------------
// Auth entry types (discriminated union on "type")
// ---------------------------------------------------------------------------

// Info is the discriminated union stored per provider in auth.json.
type Info struct {
	// Type discriminator: "crowdin" or "api"
	Type string `json:"type"`

	// Crowdin fields (type == "crowdin")
	Token string `json:"token,omitempty"`
	Org   string `json:"org,omitempty"`

	// Vendor fields (type == "api")
	Key     string `json:"key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`

	// Google Vertex fields
	Project         string `json:"project,omitempty"`
	Region          string `json:"region,omitempty"`
	CredentialsFile string `json:"credentialsFile,omitempty"`

	// Azure OpenAI fields
	Resource   string `json:"resource,omitempty"`
	Deployment string `json:"deployment,omitempty"`
}

// IsCrowdin returns true if this is a Crowdin account entry.
func (i *Info) IsCrowdin() bool {
	return i.Type == "crowdin"
}

// IsAPI returns true if this is a vendor credential entry.
func (i *Info) IsAPI() bool {
	return i.Type == "api"
}

// Store holds all credentials, keyed by provider ID. The Crowdin
// account itself is stored under the "crowdin" key.
type Store map[string]*Info

// CrowdinKey is the store key of the Crowdin account entry.
const CrowdinKey = "crowdin"

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for the harvester.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the harvester data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil {
		return make(Store)
	}

	if store == nil {
		return make(Store)
	}

	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Delete — generic
// ---------------------------------------------------------------------------

// Get returns the auth entry for a provider, or nil if not found.
func Get(providerID string) *Info {
	store := Load()
	return store[providerID]
}

// Set stores an auth entry for a provider (upsert).
func Set(providerID string, info *Info) error {
	store := Load()
	store[providerID] = info
	return Save(store)
}

// Remove deletes credentials for a provider.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil // Nothing to delete
	}
	delete(store, providerID)
	return Save(store)
}

// ---------------------------------------------------------------------------
// Crowdin account helpers
// ---------------------------------------------------------------------------

// SetCrowdin stores the Crowdin personal access token and, for
// enterprise accounts, the organization domain.
func SetCrowdin(token, org string) error {
	return Set(CrowdinKey, &Info{
		Type:  "crowdin",
		Token: token,
		Org:   org,
	})
}

// GetCrowdin returns the stored Crowdin account entry, or nil.
func GetCrowdin() *Info {
	info := Get(CrowdinKey)
	if info == nil || !info.IsCrowdin() {
		return nil
	}
	return info
}

// ---------------------------------------------------------------------------
// Vendor credential helpers
// ---------------------------------------------------------------------------

// SetAPIKey stores an API key for a provider.
func SetAPIKey(providerID, key string) error {
	return Set(providerID, &Info{
		Type: "api",
		Key:  key,
	})
}

// GetAPIKey retrieves the stored API key for a provider.
// Returns empty string if not found or not a vendor entry.
func GetAPIKey(providerID string) string {
	info := Get(providerID)
	if info == nil || !info.IsAPI() {
		return ""
	}
	return info.Key
}

// GetBaseURL retrieves the stored base URL for a provider.
// Returns empty string if not found.
func GetBaseURL(providerID string) string {
	info := Get(providerID)
	if info == nil {
		return ""
	}
	return info.BaseURL
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// EnvVarForProvider returns the environment variable holding a
// provider's API key, or "" when the provider is not keyed that way
// (the Crowdin proxy uses the account token, Vertex a service-account
// file).
func EnvVarForProvider(providerID string) string {
	switch providerID {
	case "openai":
		return "OPENAI_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "azure":
		return "AZURE_API_KEY"
	default:
		return ""
	}
}

// ResolveAPIKey applies the credential lookup order: flag, then
// environment, then the store.
func ResolveAPIKey(providerID, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := EnvVarForProvider(providerID); env != "" {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return GetAPIKey(providerID)
}

// ---------------------------------------------------------------------------
// Display helpers
// ---------------------------------------------------------------------------

// MaskKey returns a masked version of a key/token for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

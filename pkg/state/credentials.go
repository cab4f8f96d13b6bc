// Package state manages locally persisted application state, currently the
// personal access tokens used to reach repository providers. Tokens never
// live inside the managed repository itself.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CredentialStore is the contract for token persistence. Provider
// identifiers ("github", "gitea", ...) are the keys.
type CredentialStore interface {
	// SetToken stores or updates a token for a provider.
	SetToken(provider string, token string) error
	// GetToken retrieves a token. Returns ErrCredentialNotFound if missing.
	GetToken(provider string) (string, error)
	// DeleteToken removes a stored token (idempotent).
	DeleteToken(provider string) error
	// ListProviders returns provider IDs that have tokens stored.
	ListProviders() ([]string, error)
}

// ErrCredentialNotFound is returned when no token exists for a provider.
var ErrCredentialNotFound = errors.New("credential not found")

// InMemoryCredentialStore is a thread-safe, volatile implementation used in
// tests and ephemeral sessions.
type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewInMemoryCredentialStore creates an empty store.
func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{tokens: make(map[string]string)}
}

// SetToken stores or updates the token for a provider.
func (s *InMemoryCredentialStore) SetToken(provider string, token string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[provider] = token
	return nil
}

// GetToken returns the token for provider or ErrCredentialNotFound.
func (s *InMemoryCredentialStore) GetToken(provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[provider]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

// DeleteToken removes the token for provider; missing providers are ignored.
func (s *InMemoryCredentialStore) DeleteToken(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, provider)
	return nil
}

// ListProviders returns all provider IDs that currently have tokens.
func (s *InMemoryCredentialStore) ListProviders() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// FileCredentialStore persists tokens in a YAML file, by default under the
// user's config directory. File permissions are restricted to the owner.
type FileCredentialStore struct {
	mu   sync.Mutex
	path string
}

type credentialFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// NewFileCredentialStore creates a store backed by the given file path. An
// empty path selects the default location.
func NewFileCredentialStore(path string) (*FileCredentialStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config directory: %w", err)
		}
		path = filepath.Join(dir, "astrocm", "credentials.yaml")
	}
	return &FileCredentialStore{path: path}, nil
}

func (s *FileCredentialStore) load() (*credentialFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &credentialFile{Tokens: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var cf credentialFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if cf.Tokens == nil {
		cf.Tokens = map[string]string{}
	}
	return &cf, nil
}

func (s *FileCredentialStore) save(cf *credentialFile) error {
	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("failed to encode credential file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}

// SetToken stores or updates the token for a provider.
func (s *FileCredentialStore) SetToken(provider string, token string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	cf.Tokens[provider] = token
	return s.save(cf)
}

// GetToken returns the token for provider or ErrCredentialNotFound.
func (s *FileCredentialStore) GetToken(provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return "", err
	}
	tok, ok := cf.Tokens[provider]
	if !ok || tok == "" {
		return "", ErrCredentialNotFound
	}
	return tok, nil
}

// DeleteToken removes the token for provider; missing providers are ignored.
func (s *FileCredentialStore) DeleteToken(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return err
	}
	delete(cf.Tokens, provider)
	return s.save(cf)
}

// ListProviders returns all provider IDs that currently have tokens.
func (s *FileCredentialStore) ListProviders() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cf, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cf.Tokens))
	for k := range cf.Tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// ResolveProviderToken returns the token for a provider. Lookup order:
//
//  1. Environment variable ASTROCM_<PROVIDER>_TOKEN
//  2. Environment variable ASTROCM_TOKEN
//  3. The credential store, when one is provided
//
// An empty result means no credential was found. Always redact tokens
// before logging.
func ResolveProviderToken(provider string, cs CredentialStore) (string, error) {
	if provider == "" {
		return "", errors.New("provider cannot be empty")
	}

	envName := fmt.Sprintf("ASTROCM_%s_TOKEN", strings.ToUpper(provider))
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("ASTROCM_TOKEN")); v != "" {
		return v, nil
	}

	if cs != nil {
		tok, err := cs.GetToken(provider)
		switch {
		case err == nil && strings.TrimSpace(tok) != "":
			return tok, nil
		case err != nil && !errors.Is(err, ErrCredentialNotFound):
			return "", fmt.Errorf("credential store failure: %w", err)
		}
	}

	return "", nil
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}

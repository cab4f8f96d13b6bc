package repository

import (
	"fmt"
	"strings"
)

// ProviderType represents the type of repository provider.
type ProviderType string

const (
	// ProviderGitHub represents GitHub (hosted or Enterprise).
	ProviderGitHub ProviderType = "github"
	// ProviderGitLab represents GitLab (hosted or self-managed).
	ProviderGitLab ProviderType = "gitlab"
	// ProviderGitea represents a self-hosted Gitea server.
	ProviderGitea ProviderType = "gitea"
	// ProviderGogs represents a self-hosted Gogs server.
	ProviderGogs ProviderType = "gogs"
)

// Factory creates repository clients based on the provider type.
type Factory struct {
	config Config
}

// NewFactory creates a factory whose configuration applies to every client
// it creates.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// CreateClient creates a repository client for the named provider. The
// provider name is case-insensitive.
func (f *Factory) CreateClient(provider string) (Client, error) {
	normalized := strings.ToLower(strings.TrimSpace(provider))

	switch ProviderType(normalized) {
	case ProviderGitHub:
		return NewGitHubClient(f.config)
	case ProviderGitLab:
		return NewGitLabClient(f.config)
	case ProviderGitea:
		return NewForgeClient(DialectGitea, f.config)
	case ProviderGogs:
		return NewForgeClient(DialectGogs, f.config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s (supported: %s)",
			provider, strings.Join(SupportedProviders(), ", "))
	}
}

// NewClient is a convenience function that creates a repository client
// without instantiating a Factory first.
func NewClient(provider string, config Config) (Client, error) {
	return NewFactory(config).CreateClient(provider)
}

// SupportedProviders returns all supported provider names.
func SupportedProviders() []string {
	return []string{
		string(ProviderGitHub),
		string(ProviderGitLab),
		string(ProviderGitea),
		string(ProviderGogs),
	}
}

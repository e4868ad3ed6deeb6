package integrations

import (
	"fmt"

	"github.com/pmahajan3105/releasenote-sub004/internal/config"
	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

// Catalog resolves the fixed provider set to ready-to-use flow settings,
// merging each provider's static endpoints with the deployment's client
// registration.
type Catalog struct {
	clients map[integration.Provider]config.OAuthClient
}

// NewCatalog builds the catalog from configuration.
func NewCatalog(cfg config.Config) *Catalog {
	return &Catalog{
		clients: map[integration.Provider]config.OAuthClient{
			integration.ProviderGitHub: cfg.GitHub,
			integration.ProviderJira:   cfg.Jira,
			integration.ProviderLinear: cfg.Linear,
		},
	}
}

// Get returns the settings for a provider, or ErrNotConfigured when the
// deployment has no client registration for it.
func (c *Catalog) Get(provider integration.Provider) (integration.ProviderSettings, error) {
	endpoints, ok := integration.DefaultEndpoints(provider)
	if !ok {
		return integration.ProviderSettings{}, fmt.Errorf("unknown provider %q: %w", provider, integration.ErrInvalidRequest)
	}
	client := c.clients[provider]
	if client.ClientID == "" || client.RedirectURI == "" {
		return integration.ProviderSettings{}, fmt.Errorf("provider %s has no client registration: %w", provider, integration.ErrNotConfigured)
	}
	return integration.ProviderSettings{
		Provider:        provider,
		ClientID:        client.ClientID,
		ClientSecret:    client.ClientSecret,
		RedirectURI:     client.RedirectURI,
		AuthorizeURL:    endpoints.AuthorizeURL,
		TokenURL:        endpoints.TokenURL,
		Scopes:          endpoints.Scopes,
		UsesPKCE:        endpoints.UsesPKCE,
		ExtraAuthParams: endpoints.ExtraAuthParams,
	}, nil
}

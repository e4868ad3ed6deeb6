package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

// ProviderClient encapsulates the outbound code-for-token exchange against
// an external tracker's token endpoint.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, settings integration.ProviderSettings, code, codeVerifier string) (map[string]any, error)
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

// ExchangeCode performs the OAuth token exchange and returns the token
// endpoint's raw JSON payload. The payload is what gets encrypted at rest,
// so provider-specific fields survive unmodeled.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, settings integration.ProviderSettings, code, codeVerifier string) (map[string]any, error) {
	if strings.TrimSpace(settings.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing: %w", integration.ErrNotConfigured)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", settings.RedirectURI)
	data.Set("client_id", settings.ClientID)
	if settings.ClientSecret != "" {
		data.Set("client_secret", settings.ClientSecret)
	}
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// GitHub defaults to form-encoded responses without this.
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status=%d: %w", resp.StatusCode, integration.ErrExchangeFailed)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if token, _ := raw["access_token"].(string); strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("empty access token: %w", integration.ErrExchangeFailed)
	}
	return raw, nil
}

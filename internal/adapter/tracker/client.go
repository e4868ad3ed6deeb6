// Package tracker fetches recent issues, pull requests, and tickets from
// the connected providers and normalizes them into canonical change items.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

// Clients dispatches fetches to the per-provider implementations. Outbound
// calls share one rate limiter so a burst of syncs cannot hammer the
// provider APIs.
type Clients struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClients constructs the tracker client set. requestsPerSecond bounds
// outbound calls across all providers; zero disables throttling.
func NewClients(httpClient *http.Client, requestsPerSecond float64) *Clients {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	var limiter *rate.Limiter
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return &Clients{httpClient: httpClient, limiter: limiter}
}

// FetchRecent returns items updated since the given instant, normalized to
// the canonical shape.
func (c *Clients) FetchRecent(ctx context.Context, provider integration.Provider, accessToken string, since time.Time) ([]integration.ChangeItem, error) {
	switch provider {
	case integration.ProviderGitHub:
		return c.fetchGitHub(ctx, accessToken, since)
	case integration.ProviderJira:
		return c.fetchJira(ctx, accessToken)
	case integration.ProviderLinear:
		return c.fetchLinear(ctx, accessToken)
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", provider, integration.ErrInvalidRequest)
	}
}

// doJSON performs one throttled request and decodes the JSON response.
func (c *Clients) doJSON(ctx context.Context, method, url, accessToken string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("tracker request failed: status=%d url=%s", resp.StatusCode, url)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseTime(raw, layout string) *time.Time {
	if raw == "" {
		return nil
	}
	ts, err := time.Parse(layout, raw)
	if err != nil {
		return nil
	}
	return &ts
}

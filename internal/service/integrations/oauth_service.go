package integrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthadapter "github.com/pmahajan3105/releasenote-sub004/internal/adapter/oauth"
	"github.com/pmahajan3105/releasenote-sub004/internal/credentials"
	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	"github.com/pmahajan3105/releasenote-sub004/internal/pkce"
	"github.com/pmahajan3105/releasenote-sub004/internal/repository"
)

// Service defines the integration orchestration behaviors: the OAuth
// connect flow, credential access, and tracker syncing.
type Service interface {
	StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error)
	HandleCallback(ctx context.Context, in CallbackInput) (*integration.Integration, error)
	ListIntegrations(ctx context.Context, orgID int64) ([]IntegrationStatus, error)
	Disconnect(ctx context.Context, orgID int64, provider integration.Provider) error
	AccessToken(ctx context.Context, orgID int64, provider integration.Provider) (string, error)
	SyncChanges(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.ChangeItem, error)
	CachedChanges(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error)
}

// TrackerClient fetches recent change items from a connected tracker.
type TrackerClient interface {
	FetchRecent(ctx context.Context, provider integration.Provider, accessToken string, since time.Time) ([]integration.ChangeItem, error)
}

// StartAuthorizationInput contains parameters for constructing an
// authorization redirect.
type StartAuthorizationInput struct {
	OrgID    int64
	UserID   string
	Provider string
}

// StartAuthorizationOutput returns the prepared authorization URL and the
// issued state token.
type StartAuthorizationOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures callback query parameters.
type CallbackInput struct {
	OrgID    int64
	UserID   string
	Provider string
	Code     string
	State    string
}

// IntegrationStatus is the caller-facing view of one connection. Tokens
// never leave the service decrypted.
type IntegrationStatus struct {
	Provider    integration.Provider `json:"provider"`
	Connected   bool                 `json:"connected"`
	ConnectedBy string               `json:"connected_by,omitempty"`
	ConnectedAt time.Time            `json:"connected_at,omitzero"`
}

type service struct {
	catalog         *Catalog
	states          *StateStore
	codec           *credentials.Codec
	integrationRepo repository.IntegrationRepository
	providerClient  oauthadapter.ProviderClient
	tickets         *TicketCache
	tracker         TrackerClient
	logger          *zap.Logger
}

// NewService wires the integration service implementation.
func NewService(
	catalog *Catalog,
	states *StateStore,
	codec *credentials.Codec,
	integrationRepo repository.IntegrationRepository,
	providerClient oauthadapter.ProviderClient,
	tickets *TicketCache,
	tracker TrackerClient,
	logger *zap.Logger,
) Service {
	return &service{
		catalog:         catalog,
		states:          states,
		codec:           codec,
		integrationRepo: integrationRepo,
		providerClient:  providerClient,
		tickets:         tickets,
		tracker:         tracker,
		logger:          logger,
	}
}

func (s *service) StartAuthorization(ctx context.Context, in StartAuthorizationInput) (*StartAuthorizationOutput, error) {
	provider, ok := integration.ParseProvider(in.Provider)
	if !ok || strings.TrimSpace(in.UserID) == "" {
		return nil, integration.ErrInvalidRequest
	}

	settings, err := s.catalog.Get(provider)
	if err != nil {
		return nil, err
	}

	state, err := NewToken()
	if err != nil {
		return nil, err
	}

	var verifier string
	params := url.Values{}
	params.Set("client_id", settings.ClientID)
	params.Set("redirect_uri", settings.RedirectURI)
	params.Set("scope", strings.Join(settings.Scopes, " "))
	params.Set("response_type", "code")
	params.Set("state", state)
	if settings.UsesPKCE {
		pair, err := pkce.NewPair()
		if err != nil {
			return nil, err
		}
		verifier = pair.Verifier
		params.Set("code_challenge", pair.Challenge)
		params.Set("code_challenge_method", pair.Method)
	}
	for k, v := range settings.ExtraAuthParams {
		params.Set(k, v)
	}

	// The state must be durable before the browser leaves: a redirect whose
	// state was never persisted can never be validated on callback.
	if err := s.states.Persist(ctx, provider, state, in.UserID, verifier); err != nil {
		return nil, err
	}

	authURL, err := url.Parse(settings.AuthorizeURL)
	if err != nil {
		return nil, fmt.Errorf("parse authorize url: %w", err)
	}
	authURL.RawQuery = params.Encode()

	return &StartAuthorizationOutput{
		AuthorizationURL: authURL.String(),
		State:            state,
	}, nil
}

func (s *service) HandleCallback(ctx context.Context, in CallbackInput) (*integration.Integration, error) {
	provider, ok := integration.ParseProvider(in.Provider)
	if !ok || strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, integration.ErrInvalidRequest
	}

	settings, err := s.catalog.Get(provider)
	if err != nil {
		return nil, err
	}

	// State consumption must succeed strictly before the exchange: never
	// spend an authorization code whose state could not be validated.
	rec, err := s.states.Consume(ctx, provider, in.State, in.UserID)
	if err != nil {
		return nil, err
	}

	tokenPayload, err := s.providerClient.ExchangeCode(ctx, settings, in.Code, rec.PKCEVerifier)
	if err != nil {
		return nil, err
	}

	envelope, err := s.codec.Encrypt(tokenPayload)
	if err != nil {
		return nil, err
	}

	stored, err := s.integrationRepo.Upsert(ctx, integration.Integration{
		OrgID:       in.OrgID,
		Provider:    provider,
		Credentials: envelope,
		ConnectedBy: in.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("store integration: %w", err)
	}

	s.log().Info("integration connected",
		zap.Int64("org_id", in.OrgID),
		zap.String("provider", string(provider)),
	)
	return &stored, nil
}

func (s *service) ListIntegrations(ctx context.Context, orgID int64) ([]IntegrationStatus, error) {
	stored, err := s.integrationRepo.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}

	statuses := make([]IntegrationStatus, 0, len(stored))
	for _, rec := range stored {
		// A connection whose envelope no longer opens reads as disconnected.
		connected := s.codec.AccessToken(rec.Credentials) != ""
		statuses = append(statuses, IntegrationStatus{
			Provider:    rec.Provider,
			Connected:   connected,
			ConnectedBy: rec.ConnectedBy,
			ConnectedAt: rec.CreatedAt,
		})
	}
	return statuses, nil
}

func (s *service) Disconnect(ctx context.Context, orgID int64, provider integration.Provider) error {
	if err := s.integrationRepo.Delete(ctx, orgID, provider); err != nil {
		return fmt.Errorf("disconnect integration: %w", err)
	}
	return nil
}

// AccessToken is the best-effort token lookup used by API routes calling the
// provider. It returns ErrNotConnected when no integration row exists and
// "" when the stored envelope cannot be opened.
func (s *service) AccessToken(ctx context.Context, orgID int64, provider integration.Provider) (string, error) {
	rec, err := s.integrationRepo.GetByProvider(ctx, orgID, provider)
	if err != nil {
		return "", fmt.Errorf("load integration: %w", err)
	}
	if rec == nil {
		return "", integration.ErrNotConnected
	}
	return s.codec.AccessToken(rec.Credentials), nil
}

func (s *service) SyncChanges(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.ChangeItem, error) {
	token, err := s.AccessToken(ctx, orgID, provider)
	if err != nil {
		return nil, err
	}
	if token == "" {
		// Unusable credentials surface exactly like a missing connection.
		return nil, integration.ErrNotConnected
	}

	items, err := s.tracker.FetchRecent(ctx, provider, token, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return nil, fmt.Errorf("fetch changes: %w", err)
	}

	s.tickets.CacheItems(ctx, orgID, items)
	return items, nil
}

func (s *service) CachedChanges(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error) {
	return s.tickets.List(ctx, orgID, provider)
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

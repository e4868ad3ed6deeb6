package integrations

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pmahajan3105/releasenote-sub004/internal/config"
	"github.com/pmahajan3105/releasenote-sub004/internal/credentials"
	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	"github.com/pmahajan3105/releasenote-sub004/internal/pkce"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testConfig() config.Config {
	client := config.OAuthClient{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/integrations/callback",
	}
	return config.Config{GitHub: client, Jira: client, Linear: client}
}

type serviceHarness struct {
	svc       Service
	states    *StateStore
	stateRepo *memoryStateRepo
	rows      *fakeIntegrationRepo
	tickets   *fakeTicketRepo
	provider  *fakeProviderClient
	tracker   *fakeTracker
	codec     *credentials.Codec
}

func newServiceHarness(t *testing.T, cfg config.Config) *serviceHarness {
	t.Helper()

	stateRepo := newMemoryStateRepo()
	rows := newFakeIntegrationRepo()
	tickets := newFakeTicketRepo()
	provider := &fakeProviderClient{payload: map[string]any{"access_token": "tok-123", "token_type": "bearer"}}
	trackerClient := &fakeTracker{}
	codec := credentials.NewCodec(testKeyHex, zap.NewNop())

	states := NewStateStore(stateRepo, time.Minute)
	cache := NewTicketCache(tickets, zap.NewNop())

	svc := NewService(NewCatalog(cfg), states, codec, rows, provider, cache, trackerClient, zap.NewNop())
	return &serviceHarness{
		svc:       svc,
		states:    states,
		stateRepo: stateRepo,
		rows:      rows,
		tickets:   tickets,
		provider:  provider,
		tracker:   trackerClient,
		codec:     codec,
	}
}

func TestStartAuthorizationJiraUsesPKCE(t *testing.T) {
	h := newServiceHarness(t, testConfig())

	out, err := h.svc.StartAuthorization(context.Background(), StartAuthorizationInput{
		OrgID: 1, UserID: "user-1", Provider: "jira",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.State)

	parsed, err := url.Parse(out.AuthorizationURL)
	require.NoError(t, err)
	q := parsed.Query()
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, out.State, q.Get("state"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("code_challenge"))
	require.Equal(t, "api.atlassian.com", q.Get("audience"))

	rec := h.stateRepo.peek(integration.ProviderJira, out.State)
	require.NotNil(t, rec)
	require.Equal(t, "user-1", rec.UserID)
	require.NotEmpty(t, rec.PKCEVerifier)
	require.Equal(t, pkce.Challenge(rec.PKCEVerifier), q.Get("code_challenge"))
}

func TestStartAuthorizationGitHubSkipsPKCE(t *testing.T) {
	h := newServiceHarness(t, testConfig())

	out, err := h.svc.StartAuthorization(context.Background(), StartAuthorizationInput{
		OrgID: 1, UserID: "user-1", Provider: "github",
	})
	require.NoError(t, err)

	parsed, err := url.Parse(out.AuthorizationURL)
	require.NoError(t, err)
	require.Empty(t, parsed.Query().Get("code_challenge"))

	rec := h.stateRepo.peek(integration.ProviderGitHub, out.State)
	require.NotNil(t, rec)
	require.Empty(t, rec.PKCEVerifier)
}

func TestStartAuthorizationRejectsBadInput(t *testing.T) {
	h := newServiceHarness(t, testConfig())

	_, err := h.svc.StartAuthorization(context.Background(), StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "gitlab"})
	require.ErrorIs(t, err, integration.ErrInvalidRequest)

	_, err = h.svc.StartAuthorization(context.Background(), StartAuthorizationInput{OrgID: 1, UserID: "  ", Provider: "github"})
	require.ErrorIs(t, err, integration.ErrInvalidRequest)
}

func TestStartAuthorizationUnconfiguredProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Linear = config.OAuthClient{}
	h := newServiceHarness(t, cfg)

	_, err := h.svc.StartAuthorization(context.Background(), StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "linear"})
	require.ErrorIs(t, err, integration.ErrNotConfigured)
}

func TestHandleCallbackConnectsIntegration(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	out, err := h.svc.StartAuthorization(ctx, StartAuthorizationInput{OrgID: 7, UserID: "user-1", Provider: "jira"})
	require.NoError(t, err)
	verifier := h.stateRepo.peek(integration.ProviderJira, out.State).PKCEVerifier

	stored, err := h.svc.HandleCallback(ctx, CallbackInput{
		OrgID: 7, UserID: "user-1", Provider: "jira", Code: "auth-code", State: out.State,
	})
	require.NoError(t, err)
	require.Equal(t, integration.ProviderJira, stored.Provider)
	require.Equal(t, int64(7), stored.OrgID)
	require.Equal(t, "user-1", stored.ConnectedBy)

	// The persisted verifier travels to the token exchange.
	require.Equal(t, "auth-code", h.provider.gotCode)
	require.Equal(t, verifier, h.provider.gotVerifier)

	// Stored credentials round-trip through the envelope.
	token, err := h.svc.AccessToken(ctx, 7, integration.ProviderJira)
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

func TestHandleCallbackStateIsSingleUse(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	out, err := h.svc.StartAuthorization(ctx, StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "github"})
	require.NoError(t, err)

	in := CallbackInput{OrgID: 1, UserID: "user-1", Provider: "github", Code: "code", State: out.State}
	_, err = h.svc.HandleCallback(ctx, in)
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(ctx, in)
	require.ErrorIs(t, err, integration.ErrInvalidState)
}

func TestHandleCallbackUserMismatchBurnsState(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	out, err := h.svc.StartAuthorization(ctx, StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "github"})
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(ctx, CallbackInput{
		OrgID: 1, UserID: "someone-else", Provider: "github", Code: "code", State: out.State,
	})
	require.ErrorIs(t, err, integration.ErrInvalidState)

	// The token is gone even for the right user afterwards.
	_, err = h.svc.HandleCallback(ctx, CallbackInput{
		OrgID: 1, UserID: "user-1", Provider: "github", Code: "code", State: out.State,
	})
	require.ErrorIs(t, err, integration.ErrInvalidState)
	require.Zero(t, h.provider.calls)
}

func TestHandleCallbackExpiredState(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	out, err := h.svc.StartAuthorization(ctx, StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "github"})
	require.NoError(t, err)

	h.states.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = h.svc.HandleCallback(ctx, CallbackInput{
		OrgID: 1, UserID: "user-1", Provider: "github", Code: "code", State: out.State,
	})
	require.ErrorIs(t, err, integration.ErrExpiredState)
	require.Zero(t, h.provider.calls)
}

func TestHandleCallbackExchangeFailure(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	h.provider.err = fmt.Errorf("provider said no: %w", integration.ErrExchangeFailed)
	ctx := context.Background()

	out, err := h.svc.StartAuthorization(ctx, StartAuthorizationInput{OrgID: 1, UserID: "user-1", Provider: "github"})
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(ctx, CallbackInput{
		OrgID: 1, UserID: "user-1", Provider: "github", Code: "code", State: out.State,
	})
	require.ErrorIs(t, err, integration.ErrExchangeFailed)
	require.Empty(t, h.rows.all())
}

func TestHandleCallbackRejectsMissingParams(t *testing.T) {
	h := newServiceHarness(t, testConfig())

	_, err := h.svc.HandleCallback(context.Background(), CallbackInput{OrgID: 1, UserID: "user-1", Provider: "github", Code: "", State: "s"})
	require.ErrorIs(t, err, integration.ErrInvalidRequest)

	_, err = h.svc.HandleCallback(context.Background(), CallbackInput{OrgID: 1, UserID: "user-1", Provider: "github", Code: "c", State: ""})
	require.ErrorIs(t, err, integration.ErrInvalidRequest)
}

func TestAccessTokenNotConnected(t *testing.T) {
	h := newServiceHarness(t, testConfig())

	_, err := h.svc.AccessToken(context.Background(), 42, integration.ProviderLinear)
	require.ErrorIs(t, err, integration.ErrNotConnected)
}

func TestListIntegrationsMarksUnreadableEnvelopeDisconnected(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	good, err := h.codec.Encrypt(map[string]any{"access_token": "tok"})
	require.NoError(t, err)
	_, err = h.rows.Upsert(ctx, integration.Integration{OrgID: 1, Provider: integration.ProviderGitHub, Credentials: good, ConnectedBy: "user-1"})
	require.NoError(t, err)

	bad := good
	bad.Tag = hex.EncodeToString([]byte("0123456789abcdef"))
	_, err = h.rows.Upsert(ctx, integration.Integration{OrgID: 1, Provider: integration.ProviderJira, Credentials: bad, ConnectedBy: "user-1"})
	require.NoError(t, err)

	statuses, err := h.svc.ListIntegrations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byProvider := map[integration.Provider]IntegrationStatus{}
	for _, s := range statuses {
		byProvider[s.Provider] = s
	}
	require.True(t, byProvider[integration.ProviderGitHub].Connected)
	require.False(t, byProvider[integration.ProviderJira].Connected)
}

func TestDisconnectRemovesIntegration(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	env, err := h.codec.Encrypt(map[string]any{"access_token": "tok"})
	require.NoError(t, err)
	_, err = h.rows.Upsert(ctx, integration.Integration{OrgID: 1, Provider: integration.ProviderGitHub, Credentials: env})
	require.NoError(t, err)

	require.NoError(t, h.svc.Disconnect(ctx, 1, integration.ProviderGitHub))
	_, err = h.svc.AccessToken(ctx, 1, integration.ProviderGitHub)
	require.ErrorIs(t, err, integration.ErrNotConnected)
}

func TestSyncChangesCachesFetchedItems(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	env, err := h.codec.Encrypt(map[string]any{"access_token": "tok"})
	require.NoError(t, err)
	_, err = h.rows.Upsert(ctx, integration.Integration{OrgID: 3, Provider: integration.ProviderLinear, Credentials: env})
	require.NoError(t, err)

	h.tracker.items = []integration.ChangeItem{
		{Provider: integration.ProviderLinear, ExternalID: "ENG-1", Type: integration.ChangeTypeIssue, Title: "Fix login"},
		{Provider: integration.ProviderLinear, ExternalID: "ENG-2", Type: integration.ChangeTypeIssue, Title: "Ship dark mode"},
	}

	items, err := h.svc.SyncChanges(ctx, 3, integration.ProviderLinear)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "tok", h.tracker.gotToken)

	cached, err := h.svc.CachedChanges(ctx, 3, integration.ProviderLinear)
	require.NoError(t, err)
	require.Len(t, cached, 2)
}

func TestSyncChangesUnreadableCredentials(t *testing.T) {
	h := newServiceHarness(t, testConfig())
	ctx := context.Background()

	env, err := h.codec.Encrypt(map[string]any{"access_token": "tok"})
	require.NoError(t, err)
	env.Data = hex.EncodeToString([]byte("garbage"))
	_, err = h.rows.Upsert(ctx, integration.Integration{OrgID: 3, Provider: integration.ProviderGitHub, Credentials: env})
	require.NoError(t, err)

	_, err = h.svc.SyncChanges(ctx, 3, integration.ProviderGitHub)
	require.ErrorIs(t, err, integration.ErrNotConnected)
	require.Zero(t, h.tracker.calls)
}

// ---- in-memory fakes ----

type memoryStateRepo struct {
	mu      sync.Mutex
	records map[string]integration.StateRecord
}

func newMemoryStateRepo() *memoryStateRepo {
	return &memoryStateRepo{records: make(map[string]integration.StateRecord)}
}

func stateKey(provider integration.Provider, state string) string {
	return string(provider) + ":" + state
}

func (m *memoryStateRepo) Insert(ctx context.Context, rec integration.StateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[stateKey(rec.Provider, rec.State)] = rec
	return nil
}

func (m *memoryStateRepo) Take(ctx context.Context, provider integration.Provider, state string) (*integration.StateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stateKey(provider, state)
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	delete(m.records, key)
	return &rec, nil
}

func (m *memoryStateRepo) peek(provider integration.Provider, state string) *integration.StateRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[stateKey(provider, state)]
	if !ok {
		return nil
	}
	return &rec
}

type fakeIntegrationRepo struct {
	mu     sync.Mutex
	rows   map[string]integration.Integration
	nextID int64
}

func newFakeIntegrationRepo() *fakeIntegrationRepo {
	return &fakeIntegrationRepo{rows: make(map[string]integration.Integration)}
}

func integrationKey(orgID int64, provider integration.Provider) string {
	return fmt.Sprintf("%d:%s", orgID, provider)
}

func (f *fakeIntegrationRepo) Upsert(ctx context.Context, rec integration.Integration) (integration.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := integrationKey(rec.OrgID, rec.Provider)
	now := time.Now()
	if existing, ok := f.rows[key]; ok {
		existing.Credentials = rec.Credentials
		existing.ConnectedBy = rec.ConnectedBy
		existing.UpdatedAt = now
		f.rows[key] = existing
		return existing, nil
	}
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	f.rows[key] = rec
	return rec, nil
}

func (f *fakeIntegrationRepo) GetByProvider(ctx context.Context, orgID int64, provider integration.Provider) (*integration.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[integrationKey(orgID, provider)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeIntegrationRepo) ListByOrg(ctx context.Context, orgID int64) ([]integration.Integration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []integration.Integration
	for _, rec := range f.rows {
		if rec.OrgID == orgID {
			list = append(list, rec)
		}
	}
	return list, nil
}

func (f *fakeIntegrationRepo) Delete(ctx context.Context, orgID int64, provider integration.Provider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, integrationKey(orgID, provider))
	return nil
}

func (f *fakeIntegrationRepo) all() []integration.Integration {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []integration.Integration
	for _, rec := range f.rows {
		list = append(list, rec)
	}
	return list
}

type fakeTicketRepo struct {
	mu      sync.Mutex
	rows    map[string]integration.TicketCacheRow
	upserts int
	err     error
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{rows: make(map[string]integration.TicketCacheRow)}
}

func (f *fakeTicketRepo) UpsertBatch(ctx context.Context, rows []integration.TicketCacheRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.upserts++
	for _, row := range rows {
		key := fmt.Sprintf("%d:%s:%s", row.OrgID, row.IntegrationType, row.TicketID)
		if existing, ok := f.rows[key]; ok && existing.CreatedAt != nil {
			// First observation wins, like the conflict clause in SQL.
			row.CreatedAt = existing.CreatedAt
		}
		f.rows[key] = row
	}
	return nil
}

func (f *fakeTicketRepo) ListByOrg(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []integration.TicketCacheRow
	for _, row := range f.rows {
		if row.OrgID == orgID && row.IntegrationType == provider {
			list = append(list, row)
		}
	}
	return list, nil
}

type fakeProviderClient struct {
	payload     map[string]any
	err         error
	calls       int
	gotCode     string
	gotVerifier string
}

func (f *fakeProviderClient) ExchangeCode(ctx context.Context, settings integration.ProviderSettings, code, codeVerifier string) (map[string]any, error) {
	f.calls++
	f.gotCode = code
	f.gotVerifier = codeVerifier
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

type fakeTracker struct {
	items    []integration.ChangeItem
	err      error
	calls    int
	gotToken string
}

func (f *fakeTracker) FetchRecent(ctx context.Context, provider integration.Provider, accessToken string, since time.Time) ([]integration.ChangeItem, error) {
	f.calls++
	f.gotToken = accessToken
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

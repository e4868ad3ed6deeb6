package repository

import (
	"context"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

// OAuthStateRepository persists single-use anti-forgery state records.
// Take must remove the record atomically with the read: when two callbacks
// race on the same state, at most one call may observe the record.
type OAuthStateRepository interface {
	Insert(ctx context.Context, rec integration.StateRecord) error
	Take(ctx context.Context, provider integration.Provider, state string) (*integration.StateRecord, error)
}

// IntegrationRepository persists org/provider connections with their
// encrypted credential envelopes.
type IntegrationRepository interface {
	Upsert(ctx context.Context, rec integration.Integration) (integration.Integration, error)
	GetByProvider(ctx context.Context, orgID int64, provider integration.Provider) (*integration.Integration, error)
	ListByOrg(ctx context.Context, orgID int64) ([]integration.Integration, error)
	Delete(ctx context.Context, orgID int64, provider integration.Provider) error
}

// TicketCacheRepository is the best-effort cache table for normalized
// tracker items, keyed by (org, provider, ticket id).
type TicketCacheRepository interface {
	UpsertBatch(ctx context.Context, rows []integration.TicketCacheRow) error
	ListByOrg(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error)
}

package integrations

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
	"github.com/pmahajan3105/releasenote-sub004/internal/repository"
)

// TicketCache normalizes fetched tracker items into cache rows and upserts
// them. Caching is a best-effort aid for release-note drafting: failures are
// logged and swallowed, never propagated to the enclosing flow.
type TicketCache struct {
	repo   repository.TicketCacheRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewTicketCache wires the cache over its repository.
func NewTicketCache(repo repository.TicketCacheRepository, logger *zap.Logger) *TicketCache {
	return &TicketCache{repo: repo, logger: logger, now: time.Now}
}

type ticketMetadata struct {
	Type   integration.ChangeType `json:"type"`
	Labels []string               `json:"labels,omitempty"`
	Raw    map[string]any         `json:"raw,omitempty"`
}

// ToCacheRow maps a canonical change item onto the cache table shape.
// Type, non-empty labels, and the raw payload fold into the metadata column.
func (t *TicketCache) ToCacheRow(orgID int64, item integration.ChangeItem) integration.TicketCacheRow {
	meta, err := json.Marshal(ticketMetadata{
		Type:   item.Type,
		Labels: item.Labels,
		Raw:    item.Raw,
	})
	if err != nil {
		// Raw payloads come from json.Unmarshal, so this should not happen;
		// degrade to type-only metadata rather than dropping the row.
		meta, _ = json.Marshal(ticketMetadata{Type: item.Type})
	}

	return integration.TicketCacheRow{
		OrgID:           orgID,
		IntegrationType: item.Provider,
		TicketID:        item.ExternalID,
		Title:           item.Title,
		Description:     item.Description,
		Status:          item.Status,
		Assignee:        item.Assignee,
		URL:             item.URL,
		Metadata:        meta,
		CachedAt:        t.now().UTC(),
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

// CacheItems upserts a batch of items keyed by (org, provider, external id).
// An empty batch issues no write. Errors are logged and swallowed.
func (t *TicketCache) CacheItems(ctx context.Context, orgID int64, items []integration.ChangeItem) {
	if len(items) == 0 {
		return
	}

	rows := make([]integration.TicketCacheRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, t.ToCacheRow(orgID, item))
	}

	if err := t.repo.UpsertBatch(ctx, rows); err != nil {
		t.log().Warn("ticket cache upsert failed",
			zap.Int64("org_id", orgID),
			zap.Int("items", len(rows)),
			zap.Error(err),
		)
	}
}

// List returns cached rows for an org/provider, newest first.
func (t *TicketCache) List(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error) {
	return t.repo.ListByOrg(ctx, orgID, provider)
}

func (t *TicketCache) log() *zap.Logger {
	if t != nil && t.logger != nil {
		return t.logger
	}
	return zap.L()
}

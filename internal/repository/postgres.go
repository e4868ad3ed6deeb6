package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

// Compile-time interface assertions.
var (
	_ OAuthStateRepository  = (*PostgresOAuthStateRepo)(nil)
	_ IntegrationRepository = (*PostgresIntegrationRepo)(nil)
	_ TicketCacheRepository = (*PostgresTicketCacheRepo)(nil)
)

// PostgresOAuthStateRepo implements OAuthStateRepository on the
// oauth_states table.
type PostgresOAuthStateRepo struct {
	db *pgxpool.Pool
}

func NewPostgresOAuthStateRepo(pool *pgxpool.Pool) *PostgresOAuthStateRepo {
	return &PostgresOAuthStateRepo{db: pool}
}

func (r *PostgresOAuthStateRepo) Insert(ctx context.Context, rec integration.StateRecord) error {
	var verifier *string
	if rec.PKCEVerifier != "" {
		verifier = &rec.PKCEVerifier
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO oauth_states (state, provider, user_id, pkce_verifier, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.State, string(rec.Provider), rec.UserID, verifier, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert oauth state: %w", err)
	}
	return nil
}

// Take deletes the record and returns the previous value in one statement,
// so concurrent callbacks presenting the same state resolve to one winner.
func (r *PostgresOAuthStateRepo) Take(ctx context.Context, provider integration.Provider, state string) (*integration.StateRecord, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM oauth_states
		WHERE state = $1 AND provider = $2
		RETURNING state, provider, user_id, pkce_verifier, created_at, expires_at`,
		state, string(provider),
	)

	var (
		rec      integration.StateRecord
		prov     string
		verifier *string
	)
	if err := row.Scan(&rec.State, &prov, &rec.UserID, &verifier, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("take oauth state: %w", err)
	}
	rec.Provider = integration.Provider(prov)
	if verifier != nil {
		rec.PKCEVerifier = *verifier
	}
	return &rec, nil
}

// PostgresIntegrationRepo implements IntegrationRepository on the
// integrations table.
type PostgresIntegrationRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresIntegrationRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{db: pool, node: node}
}

func (r *PostgresIntegrationRepo) Upsert(ctx context.Context, rec integration.Integration) (integration.Integration, error) {
	creds, err := json.Marshal(rec.Credentials)
	if err != nil {
		return integration.Integration{}, fmt.Errorf("marshal credentials envelope: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO integrations (id, organization_id, provider, credentials, connected_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (organization_id, provider)
		DO UPDATE SET credentials = EXCLUDED.credentials,
		              connected_by = EXCLUDED.connected_by,
		              updated_at = now()
		RETURNING id, organization_id, provider, credentials, connected_by, created_at, updated_at`,
		r.node.Generate().Int64(), rec.OrgID, string(rec.Provider), creds, rec.ConnectedBy,
	)

	stored, err := scanIntegration(row)
	if err != nil {
		return integration.Integration{}, fmt.Errorf("upsert integration: %w", err)
	}
	return *stored, nil
}

func (r *PostgresIntegrationRepo) GetByProvider(ctx context.Context, orgID int64, provider integration.Provider) (*integration.Integration, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, organization_id, provider, credentials, connected_by, created_at, updated_at
		FROM integrations
		WHERE organization_id = $1 AND provider = $2`,
		orgID, string(provider),
	)
	rec, err := scanIntegration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get integration: %w", err)
	}
	return rec, nil
}

func (r *PostgresIntegrationRepo) ListByOrg(ctx context.Context, orgID int64) ([]integration.Integration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, organization_id, provider, credentials, connected_by, created_at, updated_at
		FROM integrations
		WHERE organization_id = $1
		ORDER BY provider`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var list []integration.Integration
	for rows.Next() {
		rec, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func (r *PostgresIntegrationRepo) Delete(ctx context.Context, orgID int64, provider integration.Provider) error {
	if _, err := r.db.Exec(ctx, `
		DELETE FROM integrations WHERE organization_id = $1 AND provider = $2`,
		orgID, string(provider),
	); err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return nil
}

func scanIntegration(row pgx.Row) (*integration.Integration, error) {
	var (
		rec   integration.Integration
		prov  string
		creds []byte
	)
	if err := row.Scan(&rec.ID, &rec.OrgID, &prov, &creds, &rec.ConnectedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Provider = integration.Provider(prov)
	if err := json.Unmarshal(creds, &rec.Credentials); err != nil {
		return nil, fmt.Errorf("decode credentials envelope: %w", err)
	}
	return &rec, nil
}

// PostgresTicketCacheRepo implements TicketCacheRepository on the
// ticket_cache table.
type PostgresTicketCacheRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTicketCacheRepo(pool *pgxpool.Pool) *PostgresTicketCacheRepo {
	return &PostgresTicketCacheRepo{db: pool}
}

const upsertTicketSQL = `
	INSERT INTO ticket_cache (organization_id, integration_type, ticket_id, title, description,
	                          status, assignee, url, metadata, cached_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), $12)
	ON CONFLICT (organization_id, integration_type, ticket_id)
	DO UPDATE SET title = EXCLUDED.title,
	              description = EXCLUDED.description,
	              status = EXCLUDED.status,
	              assignee = EXCLUDED.assignee,
	              url = EXCLUDED.url,
	              metadata = EXCLUDED.metadata,
	              cached_at = EXCLUDED.cached_at,
	              created_at = COALESCE($11, ticket_cache.created_at),
	              updated_at = EXCLUDED.updated_at`

func (r *PostgresTicketCacheRepo) UpsertBatch(ctx context.Context, rows []integration.TicketCacheRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(upsertTicketSQL,
			row.OrgID, string(row.IntegrationType), row.TicketID, row.Title, row.Description,
			row.Status, row.Assignee, row.URL, row.Metadata, row.CachedAt, row.CreatedAt, row.UpdatedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert ticket cache row: %w", err)
		}
	}
	return nil
}

func (r *PostgresTicketCacheRepo) ListByOrg(ctx context.Context, orgID int64, provider integration.Provider) ([]integration.TicketCacheRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT organization_id, integration_type, ticket_id, title, description,
		       status, assignee, url, metadata, cached_at, created_at, updated_at
		FROM ticket_cache
		WHERE organization_id = $1 AND integration_type = $2
		ORDER BY cached_at DESC`,
		orgID, string(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("list ticket cache: %w", err)
	}
	defer rows.Close()

	var list []integration.TicketCacheRow
	for rows.Next() {
		var (
			row  integration.TicketCacheRow
			prov string
		)
		if err := rows.Scan(&row.OrgID, &prov, &row.TicketID, &row.Title, &row.Description,
			&row.Status, &row.Assignee, &row.URL, &row.Metadata, &row.CachedAt, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket cache row: %w", err)
		}
		row.IntegrationType = integration.Provider(prov)
		list = append(list, row)
	}
	return list, rows.Err()
}

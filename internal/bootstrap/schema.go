package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS oauth_states (
		state         TEXT NOT NULL,
		provider      TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		pkce_verifier TEXT,
		created_at    TIMESTAMPTZ NOT NULL,
		expires_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (state, provider)
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_states_expires_at_idx ON oauth_states (expires_at)`,
	`CREATE TABLE IF NOT EXISTS integrations (
		id              BIGINT PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		provider        TEXT NOT NULL,
		credentials     JSONB NOT NULL,
		connected_by    TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (organization_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS ticket_cache (
		organization_id  BIGINT NOT NULL,
		integration_type TEXT NOT NULL,
		ticket_id        TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT '',
		assignee         TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL DEFAULT '',
		metadata         JSONB,
		cached_at        TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ,
		PRIMARY KEY (organization_id, integration_type, ticket_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ticket_cache_cached_at_idx ON ticket_cache (organization_id, integration_type, cached_at DESC)`,
}

// EnsureSchema applies the table definitions on startup so dev and e2e
// environments come up without a separate migration step.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSchema(ctx, pool, logger)
		},
	})
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if logger != nil {
		logger.Info("database schema ensured")
	}
	return nil
}
